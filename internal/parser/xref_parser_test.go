package parser

import (
	"fmt"
	"testing"

	"github.com/coregx/pdfxref/internal/pdxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXrefParser_ClassicTable(t *testing.T) {
	header := "%PDF-1.4\n"
	obj1 := "1 0 obj\n<< /Type /Catalog >>\nendobj\n"
	obj2 := "2 0 obj\n<< /Type /Pages >>\nendobj\n"
	body := header + obj1 + obj2
	offset1 := int64(len(header))
	offset2 := int64(len(header) + len(obj1))

	xref := "xref\n0 3\n" +
		"0000000000 65535 f \n" +
		fmt.Sprintf("%010d %05d n \n", offset1, 0) +
		fmt.Sprintf("%010d %05d n \n", offset2, 0) +
		"trailer\n<< /Size 3 /Root 1 0 R >>\n"
	xrefOffset := int64(len(body))
	full := body + xref

	src := NewBufferSource([]byte(full))
	dir, err := NewXrefParser(src).Parse(xrefOffset)
	require.NoError(t, err)

	root, ok := dir.RootKey()
	require.True(t, ok)
	assert.Equal(t, uint32(1), root.Number)

	e1 := dir.Xref[ObjectKey{Number: 1, Generation: 0}]
	assert.Equal(t, EntryInUse, e1.Kind)
	assert.Equal(t, offset1, e1.Offset)

	e2 := dir.Xref[ObjectKey{Number: 2, Generation: 0}]
	assert.Equal(t, EntryInUse, e2.Kind)
	assert.Equal(t, offset2, e2.Offset)

	e0 := dir.Xref[ObjectKey{Number: 0, Generation: 65535}]
	assert.Equal(t, EntryFree, e0.Kind)

	assert.Equal(t, "table", dir.XrefType())
	assert.False(t, dir.IsXrefStream)
	assert.False(t, dir.HasHybridXref)
}

func TestXrefParser_PrevChain(t *testing.T) {
	header := "%PDF-1.4\n"
	obj1v1 := "1 0 obj\n<< /Type /Catalog /Count 1 >>\nendobj\n"
	revision1 := header + obj1v1
	obj1v1Offset := int64(len(header))

	xref1 := "xref\n0 2\n" +
		"0000000000 65535 f \n" +
		fmt.Sprintf("%010d %05d n \n", obj1v1Offset, 0) +
		"trailer\n<< /Size 2 /Root 1 0 R >>\n"
	xref1Offset := int64(len(revision1))

	revision1Full := revision1 + xref1

	obj2 := "2 0 obj\n<< /Type /Pages >>\nendobj\n"
	obj2Offset := int64(len(revision1Full))
	revision2 := revision1Full + obj2

	xref2 := "xref\n2 1\n" +
		fmt.Sprintf("%010d %05d n \n", obj2Offset, 0) +
		fmt.Sprintf("trailer\n<< /Size 3 /Root 1 0 R /Prev %d >>\n", xref1Offset)
	xref2Offset := int64(len(revision2))

	full := revision2 + xref2

	src := NewBufferSource([]byte(full))
	dir, err := NewXrefParser(src).Parse(xref2Offset)
	require.NoError(t, err)

	assert.Equal(t, 2, dir.TrailerCount)
	e1 := dir.Xref[ObjectKey{Number: 1, Generation: 0}]
	assert.Equal(t, obj1v1Offset, e1.Offset, "entry from the older revision survives via /Prev")
	e2 := dir.Xref[ObjectKey{Number: 2, Generation: 0}]
	assert.Equal(t, obj2Offset, e2.Offset)

	size, ok := dir.Trailer.Get("Size").(Integer)
	require.True(t, ok)
	assert.Equal(t, Integer(3), size, "newest trailer's /Size wins")
}

func TestXrefParser_XrefStream(t *testing.T) {
	header := "%PDF-1.4\n"
	obj1 := "1 0 obj\n<< /Type /Catalog >>\nendobj\n"
	body := header + obj1
	offset1 := int64(len(header))

	entries := map[ObjectKey]XrefEntry{
		{Number: 0, Generation: 65535}: FreeEntry(0, 65535),
		{Number: 1, Generation: 0}:     InUseEntry(offset1, 0),
	}
	streamOffset := int64(len(body))
	encBody, w, index := EncodeXrefStream(entries, 1)

	idxStr := ""
	for i, v := range index {
		if i > 0 {
			idxStr += " "
		}
		idxStr += fmt.Sprintf("%d", v)
	}

	streamObj := fmt.Sprintf(
		"3 0 obj\n<< /Type /XRef /Size 2 /W [%d %d %d] /Index [%s] /Length %d >>\nstream\n",
		w[0], w[1], w[2], idxStr, len(encBody),
	) + string(encBody) + "\nendstream\nendobj\n"

	full := body + streamObj
	src := NewBufferSource([]byte(full))
	dir, err := NewXrefParser(src).Parse(streamOffset)
	require.NoError(t, err)

	assert.True(t, dir.IsXrefStream)
	assert.Equal(t, "stream", dir.XrefType())
	e1 := dir.Xref[ObjectKey{Number: 1, Generation: 0}]
	assert.Equal(t, EntryInUse, e1.Kind)
	assert.Equal(t, offset1, e1.Offset)
}

func TestXrefParser_RepairsBadStartOffset(t *testing.T) {
	header := "%PDF-1.4\n"
	obj1 := "1 0 obj\n<< /Type /Catalog >>\nendobj\n"
	body := header + obj1
	offset1 := int64(len(header))

	xref := "xref\n0 2\n" +
		"0000000000 65535 f \n" +
		fmt.Sprintf("%010d %05d n \n", offset1, 0) +
		"trailer\n<< /Size 2 /Root 1 0 R >>\n"
	xrefOffset := int64(len(body))
	full := body + xref

	src := NewBufferSource([]byte(full))
	// A startxref offset that lands a few bytes into the "xref" keyword
	// itself, rather than at its start, must still be repaired to the
	// real section instead of failing outright.
	dir, err := NewXrefParser(src).Parse(xrefOffset + 2)
	require.NoError(t, err)

	root, ok := dir.RootKey()
	require.True(t, ok)
	assert.Equal(t, uint32(1), root.Number)
	e1 := dir.Xref[ObjectKey{Number: 1, Generation: 0}]
	assert.Equal(t, offset1, e1.Offset)
}

func TestXrefParser_UnrepairableOffsetIsFatal(t *testing.T) {
	src := NewBufferSource([]byte("this document has no such keyword anywhere in it"))
	_, err := NewXrefParser(src).Parse(5)
	assert.Error(t, err)
}

func TestXrefParser_LoopDetection(t *testing.T) {
	header := "%PDF-1.4\n"
	xrefOffset := int64(len(header))
	// /Prev points back at the section's own offset, forcing a cycle.
	xref := "xref\n0 1\n0000000000 65535 f \n" +
		fmt.Sprintf("trailer\n<< /Size 1 /Prev %d >>\n", xrefOffset)
	full := header + xref

	src := NewBufferSource([]byte(full))
	_, err := NewXrefParser(src).Parse(xrefOffset)
	require.Error(t, err)

	_, ok := err.(*pdxerr.LoopDetectedError)
	assert.True(t, ok, "expected a LoopDetectedError, got %T", err)
}
