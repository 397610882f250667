package parser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/coregx/pdfxref/internal/pdxerr"
)

// ObjectStreamReader decodes the contents of one /ObjStm (PDF 1.5+
// compact object container) and serves individual objects out of it by
// index. Every object inside an object stream implicitly has
// generation 0.
type ObjectStreamReader struct {
	numbers []uint32
	offsets []int64
	body    []byte
}

// NewObjectStreamReader decompresses rawBody (the still-encoded stream
// bytes) and parses the header table of (object number, relative
// offset) pairs described by dict's /N and /First.
func NewObjectStreamReader(dict *Dictionary, rawBody []byte) (*ObjectStreamReader, error) {
	body, err := inflateIfNeeded(dict, rawBody)
	if err != nil {
		return nil, err
	}
	n := int(dict.GetInt("N"))
	first := dict.GetInt("First")
	if n <= 0 || first <= 0 || first > int64(len(body)) {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "missing or invalid /N or /First"}
	}

	header := string(body[:first])
	fields := strings.Fields(header)
	if len(fields) < n*2 {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "header shorter than /N pairs implies"}
	}

	r := &ObjectStreamReader{
		numbers: make([]uint32, n),
		offsets: make([]int64, n),
		body:    body,
	}
	for i := 0; i < n; i++ {
		num, err := strconv.ParseUint(fields[2*i], 10, 32)
		if err != nil {
			return nil, &pdxerr.InvalidObjectStreamError{Reason: "non-numeric object number in header"}
		}
		off, err := strconv.ParseInt(fields[2*i+1], 10, 64)
		if err != nil {
			return nil, &pdxerr.InvalidObjectStreamError{Reason: "non-numeric offset in header"}
		}
		r.numbers[i] = uint32(num)
		r.offsets[i] = first + off
	}
	return r, nil
}

// Count returns how many objects this stream declares.
func (r *ObjectStreamReader) Count() int { return len(r.numbers) }

// ObjectNumberAt returns the object number declared at index i.
func (r *ObjectStreamReader) ObjectNumberAt(i int) uint32 { return r.numbers[i] }

// ReadAt parses and returns the direct object stored at index i.
// Object streams never contain "N G obj"/"endobj" wrappers — just the
// bare direct object at the declared offset — but some malformed
// writers leave a stray endobj behind, which ParseObject simply stops
// short of.
func (r *ObjectStreamReader) ReadAt(i int) (Object, error) {
	if i < 0 || i >= len(r.offsets) {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "index out of range"}
	}
	start := r.offsets[i]
	end := int64(len(r.body))
	if i+1 < len(r.offsets) {
		end = r.offsets[i+1]
	}
	if start < 0 || end > int64(len(r.body)) || start > end {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "object offset out of range"}
	}
	src := NewBufferSource(bytes.TrimSpace(r.body[start:end]))
	p, err := NewObjParser(src)
	if err != nil {
		return nil, err
	}
	return p.ParseObject()
}
