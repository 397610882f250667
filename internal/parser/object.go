package parser

import "fmt"

// ObjectKey identifies a PDF indirect object by (number, generation).
// Ordering is lexicographic on (Number, Generation); equality is
// field-wise.
type ObjectKey struct {
	Number     uint32
	Generation uint16
}

// Less implements the lexicographic ordering used when enumerating keys.
func (k ObjectKey) Less(other ObjectKey) bool {
	if k.Number != other.Number {
		return k.Number < other.Number
	}
	return k.Generation < other.Generation
}

// String renders the canonical "<num> <gen> R" indirect-reference form.
func (k ObjectKey) String() string {
	return fmt.Sprintf("%d %d R", k.Number, k.Generation)
}

// Object is the PDF direct-object sum type: Null, Bool, Int, Real, Name,
// String, HexString, Array, Dictionary, Stream, or IndirectRef.
type Object interface {
	isObject()
}

type Null struct{}

func (Null) isObject() {}

type Boolean bool

func (Boolean) isObject() {}

type Integer int64

func (Integer) isObject() {}

type Real float64

func (Real) isObject() {}

// Name is a PDF /Name, stored without its leading slash and with any
// #xx escapes already decoded.
type Name string

func (Name) isObject() {}

// String is a PDF literal string "(...)".
type String []byte

func (String) isObject() {}

// HexString is a PDF hex string "<...>". Kept distinct from String
// because some callers (signatures, encryption IDs) care about the
// original encoding, even though both decode to raw bytes.
type HexString []byte

func (HexString) isObject() {}

// Array is an ordered sequence of direct objects.
type Array []Object

func (Array) isObject() {}

// IndirectRef is an unresolved "<num> <gen> R" reference appearing
// inside a dictionary or array. Resolution happens lazily through
// Index.ReadObject rather than eagerly at parse time.
type IndirectRef ObjectKey

func (IndirectRef) isObject() {}

// Dictionary is a PDF dictionary "<< ... >>", preserving insertion
// order so that Keys and Overlay iterate deterministically.
type Dictionary struct {
	keys   []string
	values map[string]Object
}

func (*Dictionary) isObject() {}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{values: make(map[string]Object)}
}

// Set assigns key to value, preserving first-seen key order.
func (d *Dictionary) Set(key string, value Object) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value for key, or nil if absent.
func (d *Dictionary) Get(key string) Object {
	if d == nil {
		return nil
	}
	return d.values[key]
}

// Keys returns dictionary keys in insertion order.
func (d *Dictionary) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// GetInt returns key as an Integer, or 0 if absent/wrong type.
func (d *Dictionary) GetInt(key string) int64 {
	if v, ok := d.Get(key).(Integer); ok {
		return int64(v)
	}
	return 0
}

// GetName returns key as a Name, or "" if absent/wrong type.
func (d *Dictionary) GetName(key string) string {
	if v, ok := d.Get(key).(Name); ok {
		return string(v)
	}
	return ""
}

// GetRef returns key as an IndirectRef and true, if present.
func (d *Dictionary) GetRef(key string) (ObjectKey, bool) {
	if v, ok := d.Get(key).(IndirectRef); ok {
		return ObjectKey(v), true
	}
	return ObjectKey{}, false
}

// GetArray returns key as an Array, or nil if absent/wrong type.
func (d *Dictionary) GetArray(key string) Array {
	if v, ok := d.Get(key).(Array); ok {
		return v
	}
	return nil
}

// Overlay copies every key from other into d, overwriting existing
// keys. Used to merge trailers along the /Prev chain, where "addAll"
// semantics means later (more recent) trailers replace earlier ones.
func (d *Dictionary) Overlay(other *Dictionary) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		d.Set(k, other.values[k])
	}
}

// Stream is a PDF stream object: its dictionary plus a lazily-readable
// window into the source. The raw bytes are not materialised at parse
// time, only the (offset, length) window and filter chain.
type Stream struct {
	Dict   *Dictionary
	Offset int64 // absolute byte offset of stream data in the source
	Length int64 // raw (encoded) length
}

func (*Stream) isObject() {}
