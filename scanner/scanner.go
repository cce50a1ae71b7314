// Package scanner tokenizes raw PDF bytes into the primitives of the object
// grammar: names, numbers, strings, array/dict delimiters, stream payloads,
// and indirect-reference patterns.
//
// The scanner buffers its io.ReaderAt source in fixed-size windows so it can
// walk arbitrarily large files without loading them eagerly, and never keeps
// references into caller memory after a token is emitted: string and stream
// payloads are copied out.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strconv"

	"github.com/wudi/zpdf/recovery"
)

// ErrMalformedToken reports a byte sequence matching no grammar production.
// Callers decide whether to abort or resynchronize at the next keyword.
var ErrMalformedToken = errors.New("malformed token")

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenDictEnd                      // '>>'
	TokenArray                        // '['
	TokenArrayEnd                     // ']'
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // integer or real
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref 'n g R'
	TokenStream                       // stream payload bytes
	TokenInlineImage                  // bytes between ID and EI in content streams
	TokenKeyword                      // obj, endobj, endstream, operators, ...
)

// Token is one lexed unit. Which fields are meaningful depends on Type:
// Str for names and keywords, Bytes for strings/streams/inline images,
// Int/Float/IsInt for numbers, Int+Gen for refs, Bool for booleans.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Hex   bool
	Gen   int
	Pos   int64
}

// Scanner produces tokens from a byte cursor.
type Scanner interface {
	Next() (Token, error)
	Position() int64
	SeekTo(offset int64) error
	// SetNextStreamLength tells the scanner how many payload bytes follow
	// the next stream keyword; negative clears the hint and falls back to
	// scanning for endstream.
	SetNextStreamLength(n int64)
}

// Config bounds scanner behavior on hostile input.
type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

// New returns a scanner over r. The window size controls incremental
// buffering granularity; zero means 64 KiB.
func New(r io.ReaderAt, cfg Config) Scanner {
	window := cfg.WindowSize
	if window <= 0 {
		window = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, window: window}
}

type pdfScanner struct {
	reader        io.ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	window        int64
	eof           bool
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) SeekTo(offset int64) error {
	if offset < 0 {
		return errors.New("seek before start")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek past end of input")
	}
	s.pos = offset
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *pdfScanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		s.pos++
		return Token{}, s.malformed("stray '>'")
	case '[':
		s.pos++
		return Token{Type: TokenArray, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		// Type 4 function delimiters; emit as keywords so callers can skip.
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case ')':
		s.pos++
		return Token{}, s.malformed("unbalanced ')'")
	}
	if isNumberStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{}, s.malformed("unexpected byte")
}

func (s *pdfScanner) malformed(detail string) error {
	err := ErrMalformedToken
	if s.cfg.Recovery != nil {
		action := s.cfg.Recovery.OnError(err, recovery.Location{
			ByteOffset: s.pos,
			Component:  "scanner: " + detail,
		})
		if action == recovery.ActionFail {
			return err
		}
	}
	return err
}

// skipWSAndComments advances past whitespace and % comments, returning
// io.EOF at end of input.
func (s *pdfScanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		if s.pos >= int64(len(s.data)) {
			return io.EOF
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				if s.pos >= int64(len(s.data)) {
					return io.EOF
				}
				if s.data[s.pos] == '\n' || s.data[s.pos] == '\r' {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.window)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF || n == 0 {
		s.eof = true
		return nil
	}
	return err
}

func (s *pdfScanner) peek(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) || isWhitespace(c) {
			break
		}
		if c == '#' {
			s.pos++
			hi := s.hexNibble()
			lo := s.hexNibble()
			out.WriteByte(hi<<4 | lo)
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *pdfScanner) hexNibble() byte {
	if s.ensure(s.pos) != nil || s.pos >= int64(len(s.data)) {
		return 0
	}
	c := s.data[s.pos]
	s.pos++
	return fromHex(c)
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			return Token{}, s.malformed("unterminated literal string")
		}
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.ensure(s.pos) != nil || s.pos >= int64(len(s.data)) {
				return Token{}, s.malformed("unterminated escape")
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.ensure(s.pos) == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2; k++ {
					if s.ensure(s.pos) != nil || s.pos >= int64(len(s.data)) {
						break
					}
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
		case '(':
			depth++
			buf.WriteByte(c)
			s.pos++
		case ')':
			depth--
			s.pos++
			if depth == 0 {
				return Token{Type: TokenString, Bytes: copyBytes(buf.Bytes()), Pos: start}, nil
			}
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.malformed("literal string exceeds limit")
		}
	}
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var nibbles []byte
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			return Token{}, s.malformed("unterminated hex string")
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			break
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if !isHexDigit(c) {
			s.pos++
			return Token{}, s.malformed("non-hex byte in hex string")
		}
		nibbles = append(nibbles, c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(len(nibbles)/2) > s.cfg.MaxStringLength {
			return Token{}, s.malformed("hex string exceeds limit")
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0') // odd count: pad per spec
	}
	out := make([]byte, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out[i/2] = fromHex(nibbles[i])<<4 | fromHex(nibbles[i+1])
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) || isWhitespace(c) {
			break
		}
		buf.WriteByte(c)
		s.pos++
	}
	kw := buf.String()
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID":
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

// scanNumberOrRef lexes a number, looking ahead for the 'n g R' reference
// pattern and rewinding when the lookahead is not a reference.
func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberLexeme()
	if first == "" {
		s.pos++
		return Token{}, s.malformed("sign or dot with no digits")
	}
	if isIntegerLexeme(first) {
		afterFirst := s.pos
		_ = s.skipWSAndComments()
		second := s.scanNumberLexeme()
		if second != "" && isIntegerLexeme(second) {
			_ = s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.peek(1)) || isWhitespace(s.peek(1))) {
				s.pos++
				num := clampInt(first)
				gen := clampInt(second)
				return Token{Type: TokenRef, Int: num, Gen: int(gen), IsInt: true, Pos: start}, nil
			}
		}
		// Not a reference: rewind so the second number is re-lexed later.
		s.pos = afterFirst
	}
	return numberToken(first, start), nil
}

// scanNumberLexeme consumes [+-]?[0-9.]* and returns the lexeme, or empty
// if no digit was present (position is restored in that case).
func (s *pdfScanner) scanNumberLexeme() string {
	start := s.pos
	var buf bytes.Buffer
	seenDigit := false
	for {
		if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
			break
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			buf.WriteByte(c)
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return buf.String()
}

func isIntegerLexeme(lex string) bool {
	for i := 0; i < len(lex); i++ {
		if lex[i] == '.' {
			return false
		}
	}
	return true
}

// numberToken converts a lexeme, clamping instead of overflowing on
// pathological digit runs.
func numberToken(lex string, pos int64) Token {
	if isIntegerLexeme(lex) {
		return Token{Type: TokenNumber, Int: clampInt(lex), IsInt: true, Pos: pos}
	}
	f, err := strconv.ParseFloat(lex, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		if len(lex) > 0 && lex[0] == '-' {
			f = -math.MaxFloat64
		} else {
			f = math.MaxFloat64
		}
	}
	return Token{Type: TokenNumber, Float: f, Pos: pos}
}

func clampInt(lex string) int64 {
	v, err := strconv.ParseInt(lex, 10, 64)
	if err == nil {
		return v
	}
	if len(lex) > 0 && lex[0] == '-' {
		return math.MinInt64
	}
	return math.MaxInt64
}

// scanStream consumes the payload following a stream keyword. With a length
// hint the payload is read exactly; otherwise the scanner searches for an
// endstream marker on a whitespace boundary.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	// The keyword must be followed by EOL before the data.
	if s.pos < int64(len(s.data)) {
		if s.data[s.pos] == '\r' {
			s.pos++
			if s.ensure(s.pos) == nil && s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
				s.pos++
			}
		} else if s.data[s.pos] == '\n' {
			s.pos++
		}
	}
	dataStart := s.pos

	if s.nextStreamLen >= 0 {
		length := s.nextStreamLen
		s.nextStreamLen = -1
		if s.cfg.MaxStreamLength > 0 && length > s.cfg.MaxStreamLength {
			return Token{}, s.malformed("stream exceeds limit")
		}
		if err := s.ensure(dataStart + length); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		end := dataStart + length
		if end > int64(len(s.data)) {
			end = int64(len(s.data))
		}
		payload := copyBytes(s.data[dataStart:end])
		s.pos = end
		s.consumeEndstream()
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}

	// No length hint: scan forward for endstream.
	needle := []byte("endstream")
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle))); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if i+int64(len(needle)) > int64(len(s.data)) {
			// Input ended first; emit what we have.
			payload := copyBytes(trimStreamEOL(s.data[dataStart:]))
			s.pos = int64(len(s.data))
			return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			return Token{}, s.malformed("endstream not found within scan limit")
		}
		if s.data[i] != 'e' || !bytes.Equal(s.data[i:i+int64(len(needle))], needle) {
			continue
		}
		prevOK := i == dataStart || isWhitespace(s.data[i-1])
		next := i + int64(len(needle))
		nextOK := next >= int64(len(s.data)) || isDelimiter(s.data[next]) || isWhitespace(s.data[next])
		if prevOK && nextOK {
			payload := copyBytes(trimStreamEOL(s.data[dataStart:i]))
			if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
				return Token{}, s.malformed("stream exceeds limit")
			}
			s.pos = next
			return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
		}
	}
}

// consumeEndstream advances past optional EOL plus the endstream keyword
// after a length-hinted payload, searching forward when the declared length
// was short.
func (s *pdfScanner) consumeEndstream() {
	if s.ensure(s.pos+1) == nil && s.pos < int64(len(s.data)) {
		if s.data[s.pos] == '\r' {
			s.pos++
			if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
				s.pos++
			}
		} else if s.data[s.pos] == '\n' {
			s.pos++
		}
	}
	needle := []byte("endstream")
	if err := s.ensure(s.pos + int64(len(needle))); err != nil && !errors.Is(err, io.EOF) {
		return
	}
	if s.pos+int64(len(needle)) <= int64(len(s.data)) && bytes.Equal(s.data[s.pos:s.pos+int64(len(needle))], needle) {
		s.pos += int64(len(needle))
		return
	}
	if idx := bytes.Index(s.data[s.pos:], needle); idx >= 0 {
		s.pos += int64(idx + len(needle))
	}
}

// scanInlineImage consumes bytes after ID until an EI delimiter preceded by
// a line break. Content-stream-only; the scanner does not interpret the
// image parameters.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	if s.ensure(s.pos) != nil || s.pos >= int64(len(s.data)) || !isWhitespace(s.data[s.pos]) {
		return Token{}, s.malformed("inline image missing whitespace after ID")
	}
	s.pos++
	dataStart := s.pos
	for {
		if err := s.ensure(s.pos + 2); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos+1 >= int64(len(s.data)) {
			return Token{}, s.malformed("unterminated inline image")
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			prevOK := s.pos > dataStart && isWhitespace(s.data[s.pos-1])
			nextOK := s.pos+2 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+2]) || isWhitespace(s.data[s.pos+2])
			if prevOK && nextOK {
				// The single whitespace byte before EI is a delimiter.
				payload := copyBytes(s.data[dataStart : s.pos-1])
				s.pos += 2
				return Token{Type: TokenInlineImage, Bytes: payload, Pos: start}, nil
			}
		}
		s.pos++
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.malformed("inline image exceeds limit")
		}
	}
}

// trimStreamEOL drops the EOL that separates payload from endstream.
func trimStreamEOL(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return data
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Whitespace per PDF 7.2.3: null, tab, LF, FF, CR, space.
func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) }

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
