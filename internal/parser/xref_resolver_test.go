package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_AddSection_NewestWins(t *testing.T) {
	r := NewResolver()

	newest := NewXrefSection(200, SectionTable)
	newest.Entries[ObjectKey{Number: 1}] = InUseEntry(500, 0)
	newest.Trailer = NewDictionary()
	newest.Trailer.Set("Root", IndirectRef{Number: 1})
	newest.Trailer.Set("Size", Integer(10))
	r.AddSection(newest)

	older := NewXrefSection(50, SectionTable)
	older.Entries[ObjectKey{Number: 1}] = InUseEntry(100, 0) // must be ignored, key already seen
	older.Entries[ObjectKey{Number: 2}] = InUseEntry(150, 0) // new key, must be added
	older.Trailer = NewDictionary()
	older.Trailer.Set("Size", Integer(5))  // must be ignored, key already seen
	older.Trailer.Set("Info", IndirectRef{Number: 9}) // new key, must be added
	r.AddSection(older)

	dir := r.Build(200)

	assert.Equal(t, int64(500), dir.Xref[ObjectKey{Number: 1}].Offset, "newest section's entry must win")
	assert.Equal(t, int64(150), dir.Xref[ObjectKey{Number: 2}].Offset, "older section fills a gap")
	assert.Equal(t, Integer(10), dir.Trailer.Get("Size"), "newest trailer value must win")
	assert.Equal(t, IndirectRef{Number: 9}, dir.Trailer.Get("Info"), "older trailer fills a gap")
	assert.Equal(t, uint32(2), dir.HighestObjectNumber)
	assert.Equal(t, 2, dir.TrailerCount)
	assert.Same(t, newest.Trailer, dir.FirstTrailer)
}

func TestResolver_VisitedAndHybrid(t *testing.T) {
	r := NewResolver()
	assert.False(t, r.Visited(10))
	r.MarkVisited(10)
	assert.True(t, r.Visited(10))

	dir := r.Build(10)
	assert.False(t, dir.HasHybridXref)
	r.MarkHybrid()
	dir = r.Build(10)
	assert.True(t, dir.HasHybridXref)
}

func TestResolver_SectionKindTracksXrefStream(t *testing.T) {
	r := NewResolver()
	sec := NewXrefSection(0, SectionStream)
	r.AddSection(sec)
	dir := r.Build(0)
	assert.True(t, dir.IsXrefStream)
	assert.Equal(t, "stream", dir.XrefType())
}

func TestDirectory_Accessors(t *testing.T) {
	r := NewResolver()
	sec := NewXrefSection(0, SectionTable)
	sec.Trailer = NewDictionary()
	sec.Trailer.Set("Root", IndirectRef{Number: 1})
	sec.Trailer.Set("Info", IndirectRef{Number: 2})
	sec.Trailer.Set("Encrypt", IndirectRef{Number: 3})
	sec.Trailer.Set("ID", Array{HexString("a"), HexString("b")})
	sec.Entries[ObjectKey{Number: 1}] = InUseEntry(10, 0)
	sec.Entries[ObjectKey{Number: 5}] = FreeEntry(0, 0)
	sec.Entries[ObjectKey{Number: 6}] = CompressedEntry(20, 0)
	sec.Entries[ObjectKey{Number: 7}] = CompressedEntry(20, 1)
	r.AddSection(sec)
	dir := r.Build(0)

	root, ok := dir.RootKey()
	require.True(t, ok)
	assert.Equal(t, uint32(1), root.Number)

	info, ok := dir.InfoKey()
	require.True(t, ok)
	assert.Equal(t, uint32(2), info.Number)

	enc, ok := dir.EncryptKey()
	require.True(t, ok)
	assert.Equal(t, uint32(3), enc.Number)

	assert.Len(t, dir.ID(), 2)
	assert.Equal(t, []uint32{1, 5, 6, 7}, dir.ObjectNumbers())
	assert.Equal(t, []uint32{5}, dir.FreeObjectNumbers())
	assert.Equal(t, []uint32{6, 7}, dir.ContainedObjectNumbers(20))
}
