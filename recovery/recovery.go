// Package recovery defines how parse errors in untrusted PDF input are
// handled: fail the whole operation, skip the offending unit, or patch over
// it and continue.
package recovery

// Strategy decides what to do when a component hits malformed input.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pinpoints where in the document an error occurred.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

// Action is the decision taken for a single error.
type Action int

const (
	// ActionFail aborts the surrounding operation.
	ActionFail Action = iota
	// ActionSkip drops the offending unit and continues.
	ActionSkip
	// ActionFix accepts a best-effort repair and continues.
	ActionFix
)
