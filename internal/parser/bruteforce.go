package parser

import (
	"github.com/coregx/pdfxref/internal/pdxerr"
)

// BruteForceIndexer scans a document byte-for-byte to rebuild a
// cross-reference table or locate a trailer when the declared xref
// chain cannot be trusted. It is the last resort the walk falls back
// to, never the first choice.
type BruteForceIndexer struct {
	src Source
}

// NewBruteForceIndexer wraps src for full-file scanning.
func NewBruteForceIndexer(src Source) *BruteForceIndexer {
	return &BruteForceIndexer{src: src}
}

// SearchObjects scans the entire source for "N G obj" headers and
// returns an entry table built purely from what it finds — the
// highest-offset occurrence of each (number, generation) pair wins,
// since later object definitions in an incrementally-updated file
// supersede earlier ones at the same key.
func (b *BruteForceIndexer) SearchObjects() (map[ObjectKey]XrefEntry, error) {
	length := b.src.Length()
	if err := b.src.Seek(0); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := b.src.ReadInto(buf); err != nil && int64(len(buf)) != length {
		return nil, &pdxerr.IoError{Op: "brute force read", Err: err}
	}

	entries := make(map[ObjectKey]XrefEntry)
	for i := 0; i < len(buf); i++ {
		if !IsDigit(buf[i]) {
			continue
		}
		if i > 0 && IsDigit(buf[i-1]) {
			continue // not the start of a number
		}
		numStart := i
		j := i
		for j < len(buf) && IsDigit(buf[j]) {
			j++
		}
		if j >= len(buf) || buf[j] != ' ' {
			i = j
			continue
		}
		genStart := j + 1
		k := genStart
		for k < len(buf) && IsDigit(buf[k]) {
			k++
		}
		if k == genStart || k+1 >= len(buf) || buf[k] != ' ' {
			i = j
			continue
		}
		if buf[k+1] != 'o' || !matchesAt(buf, k+1, "obj") {
			i = j
			continue
		}
		// Require a delimiter or whitespace right before "obj" is
		// already guaranteed by the single space; require the byte
		// after "obj" to not continue an identifier.
		after := k + 1 + 3
		if after < len(buf) && !IsEndOfName(buf[after]) && !IsEOL(buf[after]) {
			i = j
			continue
		}
		num := parseDecimal(buf[numStart:j])
		gen := parseDecimal(buf[genStart:k])
		key := ObjectKey{Number: uint32(num), Generation: uint16(gen)}
		if existing, ok := entries[key]; !ok || int64(numStart) > existing.Offset {
			entries[key] = InUseEntry(int64(numStart), uint16(gen))
		}
		i = j
	}
	return entries, nil
}

// SearchTrailer scans backward from the end of the source for the
// last well-formed "trailer << ... >>" dictionary.
func (b *BruteForceIndexer) SearchTrailer() (*Dictionary, error) {
	length := b.src.Length()
	if err := b.src.Seek(0); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := b.src.ReadInto(buf); err != nil && int64(len(buf)) != length {
		return nil, &pdxerr.IoError{Op: "brute force read", Err: err}
	}

	const marker = "trailer"
	for i := len(buf) - len(marker); i >= 0; i-- {
		if !matchesAt(buf, i, marker) {
			continue
		}
		p, err := NewObjParser(NewBufferSource(buf[i+len(marker):]))
		if err != nil {
			continue
		}
		obj, err := p.ParseObject()
		if err != nil {
			continue
		}
		if dict, ok := obj.(*Dictionary); ok {
			return dict, nil
		}
	}
	return nil, &pdxerr.MissingTrailerError{}
}

// SearchXrefNear returns the position of the "xref" keyword closest to
// target, before or after it, used when a /Prev or startxref offset
// does not point at a real xref section. Only classic "xref" keywords
// are searched; xref-stream objects are not located by this scan.
func (b *BruteForceIndexer) SearchXrefNear(target int64) (int64, error) {
	length := b.src.Length()
	if target < 0 {
		target = 0
	}
	if err := b.src.Seek(0); err != nil {
		return 0, err
	}
	buf := make([]byte, length)
	if _, err := b.src.ReadInto(buf); err != nil && int64(len(buf)) != length {
		return 0, &pdxerr.IoError{Op: "brute force read", Err: err}
	}
	best := int64(-1)
	bestDist := int64(-1)
	for i := 0; i+4 <= len(buf); i++ {
		if !matchesAt(buf, i, KeywordXref) {
			continue
		}
		if i > 0 && !IsWhitespace(buf[i-1]) && !IsDelimiter(buf[i-1]) {
			continue // part of a longer word such as "startxref"
		}
		dist := int64(i) - target
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best = int64(i)
			bestDist = dist
		}
	}
	if best < 0 {
		return 0, &pdxerr.CorruptXrefError{Reason: "no xref keyword found by brute force scan", Offset: target}
	}
	return best, nil
}

func matchesAt(buf []byte, pos int, lit string) bool {
	if pos < 0 || pos+len(lit) > len(buf) {
		return false
	}
	for i := 0; i < len(lit); i++ {
		if buf[pos+i] != lit[i] {
			return false
		}
	}
	return true
}

func parseDecimal(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v*10 + int64(c-'0')
	}
	return v
}
