// Package parser implements the PDF cross-reference resolver and object
// index: tokenization, direct-object parsing, xref table/stream parsing,
// trailer resolution, object-stream decoding, and brute-force recovery.
//
// Reference: PDF 1.7 specification (ISO 32000-1), Section 7.
package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/coregx/pdfxref/internal/pdxerr"
)

// Source is a seekable byte-oriented reader with O(1) seeks and a
// non-advancing peek. It is the sole abstraction the rest of the
// package uses to read file bytes, so the same parsing code works
// whether the backing bytes live in memory, in an *os.File, or in a
// spooled temp file created from a one-shot io.Reader.
type Source interface {
	// ReadByte reads and returns the next byte, advancing the position.
	ReadByte() (byte, error)
	// PeekByte returns the next byte without advancing the position.
	PeekByte() (byte, error)
	// ReadInto reads len(buf) bytes starting at the current position into
	// buf, advancing the position by the number of bytes read.
	ReadInto(buf []byte) (int, error)
	// Seek moves the position to pos, measured from the start of source.
	Seek(pos int64) error
	// Skip advances the position by n bytes without reading them.
	Skip(n int64) error
	// Position returns the current byte offset.
	Position() int64
	// Length returns the total length of the source in bytes.
	Length() int64
	// Close releases any resources (temp files, file handles) held by
	// the source.
	Close() error
}

// bufferSource is a Source backed by an in-memory byte slice. Used for
// small PDFs and FDFs, and as the view over decoded object-stream
// bodies.
type bufferSource struct {
	data []byte
	pos  int64
}

// NewBufferSource creates a Source over an in-memory buffer.
func NewBufferSource(data []byte) Source {
	return &bufferSource{data: data}
}

func (s *bufferSource) ReadByte() (byte, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

func (s *bufferSource) PeekByte() (byte, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	return s.data[s.pos], nil
}

func (s *bufferSource) ReadInto(buf []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(buf, s.data[s.pos:])
	s.pos += int64(n)
	if n < len(buf) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (s *bufferSource) Seek(pos int64) error {
	if pos < 0 {
		return &pdxerr.IoError{Op: "seek", Err: fmt.Errorf("negative position %d", pos)}
	}
	s.pos = pos
	return nil
}

func (s *bufferSource) Skip(n int64) error { return s.Seek(s.pos + n) }
func (s *bufferSource) Position() int64    { return s.pos }
func (s *bufferSource) Length() int64      { return int64(len(s.data)) }
func (s *bufferSource) Close() error       { return nil }

// fileSource is a Source backed by a random-access *os.File. Every read
// is a direct ReadAt on the file; no in-memory buffer is kept.
type fileSource struct {
	file   *os.File
	size   int64
	pos    int64
	closed bool
}

// NewFileSource opens filename for random-access reading.
func NewFileSource(filename string) (Source, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &pdxerr.IoError{Op: "open", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &pdxerr.IoError{Op: "stat", Err: err}
	}
	return &fileSource{file: f, size: info.Size()}, nil
}

func (s *fileSource) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := s.file.ReadAt(buf[0:1], s.pos)
	if n == 1 {
		s.pos++
		return buf[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func (s *fileSource) PeekByte() (byte, error) {
	var buf [1]byte
	n, err := s.file.ReadAt(buf[0:1], s.pos)
	if n == 1 {
		return buf[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

func (s *fileSource) ReadInto(buf []byte) (int, error) {
	n, err := s.file.ReadAt(buf, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *fileSource) Seek(pos int64) error {
	if pos < 0 {
		return &pdxerr.IoError{Op: "seek", Err: fmt.Errorf("negative position %d", pos)}
	}
	s.pos = pos
	return nil
}

func (s *fileSource) Skip(n int64) error { return s.Seek(s.pos + n) }
func (s *fileSource) Position() int64    { return s.pos }
func (s *fileSource) Length() int64      { return s.size }

func (s *fileSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// NewSpooledSource drains a one-shot io.Reader into a temp file and
// returns a Source over it. The temp file is removed when Close is
// called, even if parsing fails partway through.
func NewSpooledSource(r io.Reader) (Source, error) {
	tmp, err := os.CreateTemp("", "pdxref-spool-*")
	if err != nil {
		return nil, &pdxerr.IoError{Op: "create temp", Err: err}
	}
	name := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return nil, &pdxerr.IoError{Op: "spool", Err: err}
	}
	info, err := tmp.Stat()
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return nil, &pdxerr.IoError{Op: "stat", Err: err}
	}
	return &spooledSource{fileSource: fileSource{file: tmp, size: info.Size()}, path: name}, nil
}

// spooledSource is a fileSource that also removes its backing temp file
// on Close.
type spooledSource struct {
	fileSource
	path string
}

func (s *spooledSource) Close() error {
	err := s.fileSource.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && err == nil {
		err = &pdxerr.IoError{Op: "remove temp", Err: rmErr}
	}
	return err
}
