// Package phpserial decodes and encodes PHP serialize() payloads.
//
// Decoding followed by encoding reproduces the input byte for byte: numbers
// keep their original text, map keys keep their order, and constructs that
// are never rewritten (references, custom-serialized objects, enums) are
// carried as opaque text.
package phpserial

// Value is one node of a decoded payload.
type Value interface {
	isValue()
}

// Null is N;
type Null struct{}

// Bool is b:0; or b:1;
type Bool bool

// Int is i:<n>; with the digits kept as written.
type Int string

// Float is d:<n>; with the text kept as written (INF, NAN, exponents).
type Float string

// Str is s:<len>:"...";. The content is raw bytes.
type Str string

// Entry is one key/value pair of an Array or Object. Key is an Int or a Str.
type Entry struct {
	Key   Value
	Value Value
}

// Array is a:<n>:{...}. It is a pointer type so that containers have identity.
type Array struct {
	Entries []Entry
}

// Object is O:<len>:"Class":<n>:{...}.
type Object struct {
	Class string
	Props []Entry
}

// Opaque is a construct passed through verbatim: r:, R:, C: and E:.
type Opaque string

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Int) isValue()     {}
func (Float) isValue()   {}
func (Str) isValue()     {}
func (*Array) isValue()  {}
func (*Object) isValue() {}
func (Opaque) isValue()  {}

// Get returns the value stored under the string key, if present.
func (a *Array) Get(key string) (Value, bool) {
	for _, e := range a.Entries {
		if k, ok := e.Key.(Str); ok && string(k) == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Append adds v under the next integer key.
func (a *Array) Append(v Value) {
	next := 0
	for _, e := range a.Entries {
		if k, ok := e.Key.(Int); ok {
			if n, err := parseInt(string(k)); err == nil && n >= next {
				next = n + 1
			}
		}
	}
	a.Entries = append(a.Entries, Entry{Key: Int(itoa(next)), Value: v})
}
