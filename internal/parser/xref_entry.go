package parser

// XrefEntryKind distinguishes the three forms a cross-reference table
// entry can take.
type XrefEntryKind int

const (
	// EntryFree marks an object number as available for reuse.
	EntryFree XrefEntryKind = iota
	// EntryInUse gives a direct byte offset to an "N G obj" header.
	EntryInUse
	// EntryCompressed gives the containing object-stream number and the
	// index of the object within it (PDF 1.5+, classic xref tables
	// never produce this kind; only xref streams do).
	EntryCompressed
)

func (k XrefEntryKind) String() string {
	switch k {
	case EntryFree:
		return "free"
	case EntryInUse:
		return "in-use"
	case EntryCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// XrefEntry is the tagged union of the three table-entry shapes. Only
// the fields relevant to Kind are meaningful.
type XrefEntry struct {
	Kind XrefEntryKind

	// Free
	NextFreeNumber uint32
	NextGeneration uint16

	// InUse
	Offset     int64
	Generation uint16

	// Compressed
	ContainingStreamNumber uint32
	IndexWithinStream      uint32
}

// FreeEntry builds a free-list entry.
func FreeEntry(nextFree uint32, nextGen uint16) XrefEntry {
	return XrefEntry{Kind: EntryFree, NextFreeNumber: nextFree, NextGeneration: nextGen}
}

// InUseEntry builds a direct-offset entry.
func InUseEntry(offset int64, gen uint16) XrefEntry {
	return XrefEntry{Kind: EntryInUse, Offset: offset, Generation: gen}
}

// CompressedEntry builds an object-stream-member entry. Its implicit
// generation is always 0.
func CompressedEntry(streamNum uint32, index uint32) XrefEntry {
	return XrefEntry{Kind: EntryCompressed, ContainingStreamNumber: streamNum, IndexWithinStream: index}
}

// XrefSectionKind distinguishes how a section was encoded on disk.
type XrefSectionKind int

const (
	// SectionTable is a classic "xref\n...\ntrailer" section.
	SectionTable XrefSectionKind = iota
	// SectionStream is an xref-stream (/Type /XRef) object.
	SectionStream
)

func (k XrefSectionKind) String() string {
	if k == SectionStream {
		return "stream"
	}
	return "table"
}

// XrefSection is everything parsed from one cross-reference section:
// its own byte position, how it was encoded, its trailer dictionary,
// and the entries it contributes, keyed by ObjectKey.
type XrefSection struct {
	StartOffset int64
	Kind        XrefSectionKind
	Trailer     *Dictionary
	Entries     map[ObjectKey]XrefEntry
}

// NewXrefSection returns an empty section positioned at startOffset.
func NewXrefSection(startOffset int64, kind XrefSectionKind) *XrefSection {
	return &XrefSection{StartOffset: startOffset, Kind: kind, Entries: make(map[ObjectKey]XrefEntry)}
}
