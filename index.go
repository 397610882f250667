// Package pdfxref resolves the cross-reference structure of a PDF or
// FDF document — the header, the body's object offsets, the
// trailer chain, object streams, and brute-force recovery for
// malformed files — without interpreting content streams, fonts,
// encryption, or anything page-rendering related.
package pdfxref

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/coregx/pdfxref/internal/parser"
	"github.com/coregx/pdfxref/internal/pdxerr"
	"github.com/coregx/pdfxref/logging"
)

// Index is the resolved cross-reference façade over one opened
// document. It owns the underlying Source and must be closed when no
// longer needed.
type Index struct {
	src    parser.Source
	dir    *parser.Directory
	cfg    Config
	isFDF  bool
	header string
}

// Open opens filename and resolves its cross-reference structure using
// cfg's thresholds.
func Open(filename string, cfg Config) (*Index, error) {
	src, err := parser.NewFileSource(filename)
	if err != nil {
		return nil, err
	}
	return build(src, cfg)
}

// OpenReader drains r into a spooled temp file (needed because xref
// resolution requires random access) and resolves it.
func OpenReader(r io.Reader, cfg Config) (*Index, error) {
	src, err := parser.NewSpooledSource(r)
	if err != nil {
		return nil, err
	}
	return build(src, cfg)
}

// OpenBytes resolves an in-memory document without touching disk.
func OpenBytes(data []byte, cfg Config) (*Index, error) {
	return build(parser.NewBufferSource(data), cfg)
}

func build(src parser.Source, cfg Config) (idx *Index, err error) {
	defer func() {
		if err != nil {
			_ = src.Close()
		}
	}()

	header, isFDF, err := readHeader(src, cfg.HeaderSearchSize)
	if err != nil {
		return nil, err
	}

	var dir *parser.Directory
	startXref, err := findStartXref(src, cfg.EOFLookupRange)
	if err == nil {
		dir, err = parser.NewXrefParser(src).Parse(startXref)
	}
	if err != nil {
		logging.Logger().Warn("declared xref chain unusable, falling back to brute force", "error", err)
		dir, err = bruteForceRebuild(src)
		if err != nil {
			return nil, err
		}
	} else if validateXrefOffsets(src, dir) {
		logging.Logger().Warn("xref table has ambiguous offsets, rebuilding via brute force")
		rebuilt, rerr := bruteForceRebuild(src)
		if rerr == nil {
			dir = rebuilt
		}
	}

	if _, ok := dir.RootKey(); !ok && !isFDF {
		logging.Logger().Warn("trailer missing /Root, attempting brute-force trailer recovery")
		rebuilt, rerr := bruteForceRebuild(src)
		if rerr == nil {
			if _, ok := rebuilt.RootKey(); ok {
				dir = rebuilt
			}
		}
		if _, ok := dir.RootKey(); !ok {
			return nil, &pdxerr.MissingRootError{}
		}
	}

	return &Index{src: src, dir: dir, cfg: cfg, isFDF: isFDF, header: header}, nil
}

func bruteForceRebuild(src parser.Source) (*parser.Directory, error) {
	bf := parser.NewBruteForceIndexer(src)
	entries, err := bf.SearchObjects()
	if err != nil {
		return nil, err
	}
	trailer, err := bf.SearchTrailer()
	if err != nil {
		trailer = parser.NewDictionary()
	}
	sec := parser.NewXrefSection(0, parser.SectionTable)
	sec.Entries = entries
	sec.Trailer = trailer
	r := parser.NewResolver()
	r.AddSection(sec)
	return r.Build(0), nil
}

// readHeader scans up to limit leading bytes for a %PDF-X.Y or
// %FDF-X.Y marker.
func readHeader(src parser.Source, limit int) (string, bool, error) {
	if limit <= 0 {
		limit = 1024
	}
	if err := src.Seek(0); err != nil {
		return "", false, err
	}
	buf := make([]byte, limit)
	n, _ := src.ReadInto(buf)
	buf = buf[:n]

	if idx := bytes.Index(buf, []byte("%PDF-")); idx >= 0 {
		return extractHeaderLine(buf, idx), false, nil
	}
	if idx := bytes.Index(buf, []byte("%FDF-")); idx >= 0 {
		return extractHeaderLine(buf, idx), true, nil
	}
	return "", false, &pdxerr.MalformedHeaderError{Preview: string(buf[:min(len(buf), 32)])}
}

func extractHeaderLine(buf []byte, start int) string {
	end := start
	for end < len(buf) && !parser.IsEOL(buf[end]) {
		end++
	}
	return string(buf[start:end])
}

// findStartXref scans the last limit bytes of src for the final
// "startxref\n<offset>" pair.
func findStartXref(src parser.Source, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1024
	}
	length := src.Length()
	start := length - int64(limit)
	if start < 0 {
		start = 0
	}
	if err := src.Seek(start); err != nil {
		return 0, err
	}
	buf := make([]byte, length-start)
	if _, err := src.ReadInto(buf); err != nil && int64(len(buf)) != length-start {
		return 0, &pdxerr.IoError{Op: "read tail", Err: err}
	}

	marker := []byte(parser.KeywordStartxref)
	idx := bytes.LastIndex(buf, marker)
	if idx < 0 {
		return 0, &pdxerr.CorruptXrefError{Reason: "startxref keyword not found", Offset: length}
	}
	rest := buf[idx+len(marker):]
	numStart := -1
	numEnd := -1
	for i, b := range rest {
		if parser.IsDigit(b) {
			if numStart < 0 {
				numStart = i
			}
			numEnd = i + 1
		} else if numStart >= 0 {
			break
		}
	}
	if numStart < 0 {
		return 0, &pdxerr.CorruptXrefError{Reason: "startxref has no numeric offset", Offset: length}
	}
	offset, err := strconv.ParseInt(string(rest[numStart:numEnd]), 10, 64)
	if err != nil {
		return 0, &pdxerr.CorruptXrefError{Reason: fmt.Sprintf("invalid startxref offset: %v", err), Offset: length}
	}
	return offset, nil
}

// Close releases the underlying Source (file handle or spooled temp
// file).
func (idx *Index) Close() error { return idx.src.Close() }

// Header returns the raw "%PDF-X.Y" or "%FDF-X.Y" header line.
func (idx *Index) Header() string { return idx.header }

// IsFDF reports whether the document declared an %FDF- header.
func (idx *Index) IsFDF() bool { return idx.isFDF }

// Trailer returns the merged trailer dictionary.
func (idx *Index) Trailer() *parser.Dictionary { return idx.dir.Trailer }

// RootKey returns the /Root reference.
func (idx *Index) RootKey() (parser.ObjectKey, bool) { return idx.dir.RootKey() }

// InfoKey returns the /Info reference, if present.
func (idx *Index) InfoKey() (parser.ObjectKey, bool) { return idx.dir.InfoKey() }

// EncryptKey returns the /Encrypt reference, if present.
func (idx *Index) EncryptKey() (parser.ObjectKey, bool) { return idx.dir.EncryptKey() }

// ID returns the /ID array, if present.
func (idx *Index) ID() parser.Array { return idx.dir.ID() }

// HighestObjectNumber returns the largest object number in the table.
func (idx *Index) HighestObjectNumber() uint32 { return idx.dir.HighestObjectNumber }

// ObjectNumbers returns every distinct object number in the table.
func (idx *Index) ObjectNumbers() []uint32 { return idx.dir.ObjectNumbers() }

// ContainedObjectNumbers returns the object numbers stored inside the
// object stream streamNumber.
func (idx *Index) ContainedObjectNumbers(streamNumber uint32) []uint32 {
	return idx.dir.ContainedObjectNumbers(streamNumber)
}

// TrailerCount returns how many distinct trailer dictionaries were
// merged while walking the /Prev chain.
func (idx *Index) TrailerCount() int { return idx.dir.TrailerCount }

// IsXrefStream reports whether any section of the chain used the
// xref-stream encoding.
func (idx *Index) IsXrefStream() bool { return idx.dir.IsXrefStream }

// HasHybridXref reports whether this document mixes classic tables and
// xref streams via /XRefStm.
func (idx *Index) HasHybridXref() bool { return idx.dir.HasHybridXref }

// XrefType summarizes how the document encodes its cross-reference
// data: "table", "stream", or "hybrid".
func (idx *Index) XrefType() string { return idx.dir.XrefType() }

// ReadObject resolves and parses the indirect object identified by
// number, regardless of its generation, returning the stored
// generation alongside it.
func (idx *Index) ReadObject(number uint32) (parser.Object, uint16, error) {
	key, entry, ok := idx.lookup(number)
	if !ok {
		return nil, 0, &pdxerr.CorruptXrefError{Reason: fmt.Sprintf("object %d not in table", number)}
	}
	switch entry.Kind {
	case parser.EntryFree:
		return parser.Null{}, key.Generation, nil
	case parser.EntryCompressed:
		obj, err := idx.readCompressed(entry)
		return obj, 0, err
	default:
		obj, err := idx.readInUse(key, entry)
		return obj, key.Generation, err
	}
}

func (idx *Index) lookup(number uint32) (parser.ObjectKey, parser.XrefEntry, bool) {
	var best parser.ObjectKey
	var bestEntry parser.XrefEntry
	found := false
	for k, e := range idx.dir.Xref {
		if k.Number != number {
			continue
		}
		if !found || k.Generation > best.Generation {
			best, bestEntry, found = k, e, true
		}
	}
	return best, bestEntry, found
}

func (idx *Index) readInUse(key parser.ObjectKey, entry parser.XrefEntry) (parser.Object, error) {
	if err := idx.src.Seek(entry.Offset); err != nil {
		return nil, err
	}
	p, err := parser.NewObjParser(idx.src)
	if err != nil {
		return nil, err
	}
	gotKey, obj, err := p.ParseIndirectObject()
	if err != nil {
		return nil, err
	}
	if gotKey.Number != key.Number {
		return nil, &pdxerr.CorruptXrefError{Reason: fmt.Sprintf("offset %d holds object %d, expected %d", entry.Offset, gotKey.Number, key.Number), Offset: entry.Offset}
	}
	return obj, nil
}

func (idx *Index) readCompressed(entry parser.XrefEntry) (parser.Object, error) {
	streamKey, streamEntry, ok := idx.lookup(entry.ContainingStreamNumber)
	if !ok || streamEntry.Kind != parser.EntryInUse {
		return nil, &pdxerr.InvalidObjectStreamError{ObjectNumber: entry.ContainingStreamNumber, Reason: "containing stream not in-use"}
	}
	streamObj, err := idx.readInUse(streamKey, streamEntry)
	if err != nil {
		return nil, err
	}
	stream, ok := streamObj.(*parser.Stream)
	if !ok {
		return nil, &pdxerr.InvalidObjectStreamError{ObjectNumber: entry.ContainingStreamNumber, Reason: "not a stream object"}
	}
	raw, err := parser.ReadStreamRaw(idx.src, stream)
	if err != nil {
		return nil, err
	}
	reader, err := parser.NewObjectStreamReader(stream.Dict, raw)
	if err != nil {
		return nil, err
	}
	if int(entry.IndexWithinStream) >= reader.Count() {
		return nil, &pdxerr.InvalidObjectStreamError{ObjectNumber: entry.ContainingStreamNumber, Reason: "index out of range"}
	}
	return reader.ReadAt(int(entry.IndexWithinStream))
}

// readObjectHeaderAt reads the "N G obj" header at offset in src and
// returns the object number and generation it declares. ok is false if
// the bytes at offset don't parse as an indirect object header at all.
func readObjectHeaderAt(src parser.Source, offset int64) (number uint32, generation uint16, ok bool) {
	if err := src.Seek(offset); err != nil {
		return 0, 0, false
	}
	lex := parser.NewLexer(src)
	num, err := lex.ReadObjectNumber()
	if err != nil {
		return 0, 0, false
	}
	gen, err := lex.ReadGenerationNumber()
	if err != nil {
		return 0, 0, false
	}
	if err := lex.ReadObjectMarker(); err != nil {
		return 0, 0, false
	}
	return num, gen, true
}

// validateXrefOffsets checks every in-use entry in dir against the
// object header actually present at its declared offset. An entry
// whose header carries a different generation than the table claims
// is rewritten under the on-disk generation (the table's stale
// generation loses, per the usual newest-wins resolution rule). An
// entry whose header is unreadable or names a different object number
// is dropped as ambiguous, and the caller is told to discard the whole
// table for a brute-force rebuild rather than serve a table it no
// longer trusts.
func validateXrefOffsets(src parser.Source, dir *parser.Directory) (ambiguous bool) {
	type rewrite struct {
		oldKey parser.ObjectKey
		newKey parser.ObjectKey
		entry  parser.XrefEntry
	}
	var rewrites []rewrite
	var drops []parser.ObjectKey

	for key, entry := range dir.Xref {
		if entry.Kind != parser.EntryInUse {
			continue
		}
		num, gen, ok := readObjectHeaderAt(src, entry.Offset)
		if !ok || num != key.Number {
			drops = append(drops, key)
			ambiguous = true
			continue
		}
		if gen != key.Generation {
			rewrites = append(rewrites, rewrite{
				oldKey: key,
				newKey: parser.ObjectKey{Number: num, Generation: gen},
				entry:  parser.InUseEntry(entry.Offset, gen),
			})
		}
	}

	for _, key := range drops {
		delete(dir.Xref, key)
	}
	for _, rw := range rewrites {
		delete(dir.Xref, rw.oldKey)
		dir.Xref[rw.newKey] = rw.entry
	}
	return ambiguous
}

// VerifyOffsets is a diagnostic pass: for every InUse entry, it checks
// that an "N G obj" header with the matching object number actually
// sits at the declared offset, without materializing the object body
// or correcting anything. It returns one mismatch description per
// failing entry.
func (idx *Index) VerifyOffsets() []string {
	var problems []string
	for key, entry := range idx.dir.Xref {
		if entry.Kind != parser.EntryInUse {
			continue
		}
		num, gen, ok := readObjectHeaderAt(idx.src, entry.Offset)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: offset %d does not begin with a valid object header", key, entry.Offset))
			continue
		}
		if num != key.Number {
			problems = append(problems, fmt.Sprintf("%s: offset %d holds object %d", key, entry.Offset, num))
			continue
		}
		if gen != key.Generation {
			problems = append(problems, fmt.Sprintf("%s: offset %d holds generation %d", key, entry.Offset, gen))
		}
	}
	return problems
}
