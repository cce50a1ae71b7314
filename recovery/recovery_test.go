package recovery

import (
	"errors"
	"sync"
	"testing"
)

func TestStrictFailsEverything(t *testing.T) {
	s := NewStrict()
	action := s.OnError(errors.New("bad token"), Location{Component: "scanner"})
	if action != ActionFail {
		t.Fatalf("Strict returned %v, want ActionFail", action)
	}
}

func TestLenientRecordsAndContinues(t *testing.T) {
	s := NewLenient()
	action := s.OnError(errors.New("dangling reference"), Location{
		ByteOffset: 120,
		ObjectNum:  7,
		Component:  "parser",
	})
	if action != ActionFix {
		t.Fatalf("Lenient returned %v, want ActionFix", action)
	}
	errs := s.Errors()
	if len(errs) != 1 {
		t.Fatalf("recorded %d errors, want 1", len(errs))
	}
	if got := errs[0].Error(); got != "parser at offset 120 (obj 7 0): dangling reference" {
		t.Fatalf("recorded error = %q", got)
	}
}

func TestLenientConcurrentUse(t *testing.T) {
	s := NewLenient()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.OnError(errors.New("x"), Location{Component: "interpreter"})
			}
		}()
	}
	wg.Wait()
	if got := len(s.Errors()); got != 800 {
		t.Fatalf("recorded %d errors, want 800", got)
	}
}
