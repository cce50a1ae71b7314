package raw

// Concrete implementations for raw objects.

// NameObj is the concrete Name.
type NameObj struct{ Val string }

func (n NameObj) Type() string  { return "name" }
func (n NameObj) Value() string { return n.Val }

// NumberObj is the concrete Number. Integers keep I, reals keep F.
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string { return "number" }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

// BoolObj is the concrete Boolean.
type BoolObj struct{ V bool }

func (b BoolObj) Type() string { return "boolean" }
func (b BoolObj) Value() bool  { return b.V }

// NullObj is the concrete Null.
type NullObj struct{}

func (NullObj) Type() string { return "null" }

// StringObj is the concrete String. Hex records whether the source token
// used the <...> form; the bytes are already decoded either way.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string  { return "string" }
func (s StringObj) Value() []byte { return s.Bytes }
func (s StringObj) IsHex() bool   { return s.Hex }

// ArrayObj is the concrete Array.
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string { return "array" }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// DictObj is the concrete Dictionary. Keys are stored without the leading
// slash.
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string { return "dict" }
func (d *DictObj) Get(key string) (Object, bool) {
	o, ok := d.KV[key]
	return o, ok
}
func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}
func (d *DictObj) Keys() []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	return keys
}
func (d *DictObj) Len() int { return len(d.KV) }

// StreamObj is the concrete Stream; Data holds the raw, still-encoded bytes.
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string           { return "stream" }
func (s *StreamObj) Dictionary() Dictionary { return s.Dict }
func (s *StreamObj) RawData() []byte        { return s.Data }
func (s *StreamObj) Length() int64          { return int64(len(s.Data)) }

// RefObj is the concrete Reference.
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string   { return "ref" }
func (r RefObj) Ref() ObjectRef { return r.R }

// Constructors.

func NameLiteral(v string) NameObj    { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj     { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj { return NumberObj{F: f} }
func Bool(v bool) BoolObj             { return BoolObj{V: v} }
func Str(b []byte) StringObj          { return StringObj{Bytes: b} }
func HexStr(b []byte) StringObj       { return StringObj{Bytes: b, Hex: true} }
func NewArray(items ...Object) *ArrayObj {
	return &ArrayObj{Items: items}
}
// Dict builds a dictionary, copying kv when non-nil.
func Dict(kv map[string]Object) *DictObj {
	d := &DictObj{KV: make(map[string]Object, len(kv))}
	for k, v := range kv {
		d.KV[k] = v
	}
	return d
}
func NewStream(dict *DictObj, data []byte) *StreamObj {
	return &StreamObj{Dict: dict, Data: data}
}
func Ref(num, gen int) RefObj { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// AsDict returns the dictionary view of obj: the dict itself, or a stream's
// dictionary.
func AsDict(obj Object) (Dictionary, bool) {
	switch v := obj.(type) {
	case *DictObj:
		return v, true
	case Stream:
		if d := v.Dictionary(); d != nil {
			return d, true
		}
	}
	return nil, false
}

// DictName returns the string value of a name entry.
func DictName(d Dictionary, key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := v.(Name)
	if !ok {
		return "", false
	}
	return n.Value(), true
}

// DictInt returns the integer value of a number entry.
func DictInt(d Dictionary, key string) (int64, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(Number)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

// DictFloat returns the float value of a number entry.
func DictFloat(d Dictionary, key string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(Number)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// DictString returns the byte value of a string entry.
func DictString(d Dictionary, key string) ([]byte, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.(String)
	if !ok {
		return nil, false
	}
	return s.Value(), true
}

// DictBool returns the value of a boolean entry.
func DictBool(d Dictionary, key string) (bool, bool) {
	if d == nil {
		return false, false
	}
	v, ok := d.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(Boolean)
	if !ok {
		return false, false
	}
	return b.Value(), true
}
