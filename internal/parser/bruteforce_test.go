package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() []byte {
	return []byte(
		"%PDF-1.4\n" +
			"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
			"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
			"3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n" +
			"trailer\n<< /Size 4 /Root 1 0 R >>\n" +
			"%%EOF\n")
}

func TestBruteForceIndexer_SearchObjects(t *testing.T) {
	doc := sampleDocument()
	bf := NewBruteForceIndexer(NewBufferSource(doc))
	entries, err := bf.SearchObjects()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, num := range []uint32{1, 2, 3} {
		key := ObjectKey{Number: num, Generation: 0}
		entry, ok := entries[key]
		require.True(t, ok, "expected object %d", num)
		assert.Equal(t, EntryInUse, entry.Kind)
	}
}

func TestBruteForceIndexer_SearchTrailer(t *testing.T) {
	doc := sampleDocument()
	bf := NewBruteForceIndexer(NewBufferSource(doc))
	trailer, err := bf.SearchTrailer()
	require.NoError(t, err)
	assert.Equal(t, int64(4), trailer.GetInt("Size"))
	ref, ok := trailer.GetRef("Root")
	require.True(t, ok)
	assert.Equal(t, uint32(1), ref.Number)
}

func TestBruteForceIndexer_SearchTrailer_Missing(t *testing.T) {
	bf := NewBruteForceIndexer(NewBufferSource([]byte("no trailer keyword here")))
	_, err := bf.SearchTrailer()
	assert.Error(t, err)
}

func TestBruteForceIndexer_SearchXrefNear(t *testing.T) {
	doc := []byte("garbage garbage xref\n0 1\n0000000000 65535 f \ntrailer\n<<>>")
	bf := NewBruteForceIndexer(NewBufferSource(doc))
	offset, err := bf.SearchXrefNear(0)
	require.NoError(t, err)
	assert.Equal(t, int64(16), offset)
}

func TestBruteForceIndexer_SearchXrefNear_NotFound(t *testing.T) {
	bf := NewBruteForceIndexer(NewBufferSource([]byte("nothing here")))
	_, err := bf.SearchXrefNear(0)
	assert.Error(t, err)
}
