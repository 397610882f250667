package parser

import "sort"

// Resolver accumulates XrefSections discovered while walking a
// document's /Prev chain (newest section first) into a single,
// merged Directory. Because the walk proceeds from the newest
// revision backwards, earlier calls to AddSection win: an object key
// or trailer key already present is never overwritten by an older
// section. This gives classic xref/xref-stream hybrid files
// (/XRefStm) and incremental updates the same "newest wins" precedence
// without any special-casing at the call site.
type Resolver struct {
	xref         map[ObjectKey]XrefEntry
	trailer      *Dictionary
	trailerCount int
	firstTrailer *Dictionary
	sections     []*XrefSection
	visited      map[int64]struct{}
	hasXrefStream bool
	hasHybridXref bool
}

// NewResolver returns an empty builder.
func NewResolver() *Resolver {
	return &Resolver{
		xref:    make(map[ObjectKey]XrefEntry),
		trailer: NewDictionary(),
		visited: make(map[int64]struct{}),
	}
}

// Visited reports whether offset has already been recorded with
// MarkVisited, used by the walk loop to detect /Prev cycles.
func (r *Resolver) Visited(offset int64) bool {
	_, ok := r.visited[offset]
	return ok
}

// MarkVisited records offset as seen, independent of whether a section
// was successfully parsed there (a malformed /Prev target still counts
// towards cycle detection).
func (r *Resolver) MarkVisited(offset int64) {
	r.visited[offset] = struct{}{}
}

// MarkHybrid records that this document mixes classic tables and xref
// streams via /XRefStm.
func (r *Resolver) MarkHybrid() { r.hasHybridXref = true }

// AddSection merges one parsed section's entries and trailer into the
// accumulated result. Entries for keys already present are discarded;
// only new keys are added. Trailer keys follow the same rule.
func (r *Resolver) AddSection(sec *XrefSection) {
	r.sections = append(r.sections, sec)
	if sec.Kind == SectionStream {
		r.hasXrefStream = true
	}
	for k, e := range sec.Entries {
		if _, exists := r.xref[k]; !exists {
			r.xref[k] = e
		}
	}
	if sec.Trailer != nil {
		r.trailerCount++
		if r.firstTrailer == nil {
			r.firstTrailer = sec.Trailer
		}
		underlay(r.trailer, sec.Trailer)
	}
}

// underlay copies keys from src into dst only where dst does not
// already have them — the reverse of Dictionary.Overlay.
func underlay(dst, src *Dictionary) {
	for _, k := range src.Keys() {
		if dst.Get(k) == nil {
			dst.Set(k, src.Get(k))
		}
	}
}

// Build finalizes the accumulated state into a Directory.
func (r *Resolver) Build(startXref int64) *Directory {
	var highest uint32
	for k := range r.xref {
		if k.Number > highest {
			highest = k.Number
		}
	}
	return &Directory{
		Trailer:             r.trailer,
		Xref:                r.xref,
		StartXref:           startXref,
		HighestObjectNumber: highest,
		IsXrefStream:        r.hasXrefStream,
		HasHybridXref:       r.hasHybridXref,
		TrailerCount:        r.trailerCount,
		FirstTrailer:        r.firstTrailer,
	}
}

// Directory is the fully resolved result of walking a document's
// cross-reference chain: one merged entry table, one merged trailer,
// and bookkeeping about how the chain was shaped.
type Directory struct {
	Trailer             *Dictionary
	Xref                map[ObjectKey]XrefEntry
	StartXref           int64
	HighestObjectNumber uint32
	IsXrefStream        bool
	HasHybridXref       bool
	TrailerCount        int
	FirstTrailer        *Dictionary
}

// RootKey returns the /Root reference from the merged trailer.
func (d *Directory) RootKey() (ObjectKey, bool) { return d.Trailer.GetRef("Root") }

// InfoKey returns the /Info reference from the merged trailer, if any.
func (d *Directory) InfoKey() (ObjectKey, bool) { return d.Trailer.GetRef("Info") }

// EncryptKey returns the /Encrypt reference from the merged trailer, if any.
func (d *Directory) EncryptKey() (ObjectKey, bool) { return d.Trailer.GetRef("Encrypt") }

// ID returns the /ID array from the merged trailer, if present.
func (d *Directory) ID() Array { return d.Trailer.GetArray("ID") }

// ObjectNumbers returns every distinct object number present in the
// table, sorted ascending, regardless of generation or entry kind.
func (d *Directory) ObjectNumbers() []uint32 {
	seen := make(map[uint32]struct{}, len(d.Xref))
	for k := range d.Xref {
		seen[k.Number] = struct{}{}
	}
	out := make([]uint32, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FreeObjectNumbers returns every object number whose entry is Free,
// sorted ascending.
func (d *Directory) FreeObjectNumbers() []uint32 {
	var out []uint32
	for k, e := range d.Xref {
		if e.Kind == EntryFree {
			out = append(out, k.Number)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ContainedObjectNumbers returns the object numbers whose entries are
// Compressed members of the object stream streamNumber, sorted by
// their IndexWithinStream.
func (d *Directory) ContainedObjectNumbers(streamNumber uint32) []uint32 {
	type member struct {
		number uint32
		index  uint32
	}
	var members []member
	for k, e := range d.Xref {
		if e.Kind == EntryCompressed && e.ContainingStreamNumber == streamNumber {
			members = append(members, member{number: k.Number, index: e.IndexWithinStream})
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].index < members[j].index })
	out := make([]uint32, len(members))
	for i, m := range members {
		out[i] = m.number
	}
	return out
}

// XrefType summarizes how this document encodes its cross-reference
// data, for diagnostics.
func (d *Directory) XrefType() string {
	switch {
	case d.HasHybridXref:
		return "hybrid"
	case d.IsXrefStream:
		return "stream"
	default:
		return "table"
	}
}
