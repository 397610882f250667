package parser

import (
	"github.com/coregx/pdfxref/internal/pdxerr"
)

// XrefParser walks a document's cross-reference chain starting from a
// startxref offset, following /Prev links (and /XRefStm hybrid links)
// until it reaches a revision with no predecessor, merging everything
// into a single Resolver.
type XrefParser struct {
	src        Source
	resolver   *Resolver
	bruteForce *BruteForceIndexer
}

// NewXrefParser returns a parser reading from src.
func NewXrefParser(src Source) *XrefParser {
	return &XrefParser{src: src, resolver: NewResolver()}
}

// Parse walks the chain beginning at startOffset and returns the
// merged Directory. Each offset that fails to parse as either a
// classic table or an xref-stream object is given one repair attempt
// via repairOffset before being treated as fatal; a /Prev cycle, or an
// offset that still resolves to nothing after repair, is reported as
// an error, and callers fall back to BruteForceIndexer for the whole
// document rather than aborting outright.
func (p *XrefParser) Parse(startOffset int64) (*Directory, error) {
	offset := startOffset
	for offset != 0 {
		if p.resolver.Visited(offset) {
			return nil, &pdxerr.LoopDetectedError{Offset: offset}
		}
		p.resolver.MarkVisited(offset)

		sec, prev, xrefStm, err := p.parseSectionAt(offset)
		if err != nil {
			repaired, rerr := p.repairOffset(offset)
			if rerr != nil || p.resolver.Visited(repaired) {
				return nil, err
			}
			p.resolver.MarkVisited(repaired)
			sec, prev, xrefStm, err = p.parseSectionAt(repaired)
			if err != nil {
				return nil, err
			}
		}
		p.resolver.AddSection(sec)

		if xrefStm != 0 && !p.resolver.Visited(xrefStm) {
			p.resolver.MarkHybrid()
			p.resolver.MarkVisited(xrefStm)
			hybridSec, _, _, err := p.parseSectionAt(xrefStm)
			if err == nil {
				p.resolver.AddSection(hybridSec)
			}
		}

		offset = prev
	}
	return p.resolver.Build(startOffset), nil
}

// repairOffset recovers from a startxref or /Prev offset that does not
// point at a real xref section by scanning the document for the
// nearest "xref" keyword, the same last-resort technique
// BruteForceIndexer applies when rebuilding a whole document.
func (p *XrefParser) repairOffset(target int64) (int64, error) {
	if p.bruteForce == nil {
		p.bruteForce = NewBruteForceIndexer(p.src)
	}
	return p.bruteForce.SearchXrefNear(target)
}

// parseSectionAt parses one cross-reference section (classic table or
// xref-stream object) located at offset, returning it along with the
// /Prev offset (0 if absent) and an /XRefStm hybrid offset (0 if
// absent, and only meaningful for classic tables).
func (p *XrefParser) parseSectionAt(offset int64) (*XrefSection, int64, int64, error) {
	if err := p.src.Seek(offset); err != nil {
		return nil, 0, 0, err
	}
	lex := NewLexer(p.src)
	if lex.IsString(KeywordXref) {
		return p.parseClassicTable(offset, lex)
	}
	return p.parseStreamSection(offset)
}

// parseClassicTable parses "xref\n<sub>*\ntrailer\n<dict>".
func (p *XrefParser) parseClassicTable(offset int64, lex *Lexer) (*XrefSection, int64, int64, error) {
	for i := 0; i < len(KeywordXref); i++ {
		if _, err := lex.advance(); err != nil {
			return nil, 0, 0, err
		}
	}
	sec := NewXrefSection(offset, SectionTable)

	for {
		if err := lex.SkipSpaces(); err != nil {
			return nil, 0, 0, err
		}
		if lex.IsString(KeywordTrailer) {
			break
		}
		b, err := p.src.PeekByte()
		if err != nil || !IsDigit(b) {
			break
		}
		start, err := lex.ReadObjectNumber()
		if err != nil {
			return nil, 0, 0, err
		}
		count, err := lex.ReadObjectNumber()
		if err != nil {
			return nil, 0, 0, err
		}
		for i := uint32(0); i < count; i++ {
			if err := lex.SkipSpaces(); err != nil {
				return nil, 0, 0, err
			}
			entryOffset, err := lex.readUint()
			if err != nil {
				return nil, 0, 0, err
			}
			gen, err := lex.ReadGenerationNumber()
			if err != nil {
				return nil, 0, 0, err
			}
			if err := lex.SkipSpaces(); err != nil {
				return nil, 0, 0, err
			}
			kindByte, err := p.src.ReadByte()
			if err != nil {
				return nil, 0, 0, err
			}
			key := ObjectKey{Number: start + i, Generation: gen}
			switch kindByte {
			case 'n':
				sec.Entries[key] = InUseEntry(int64(entryOffset), gen)
			case 'f':
				sec.Entries[key] = FreeEntry(uint32(entryOffset), gen)
			default:
				return nil, 0, 0, &pdxerr.MalformedError{Where: "xref entry", Detail: "expected 'n' or 'f'"}
			}
		}
	}

	if !lex.IsString(KeywordTrailer) {
		return nil, 0, 0, &pdxerr.MissingTrailerError{}
	}
	for i := 0; i < len(KeywordTrailer); i++ {
		if _, err := lex.advance(); err != nil {
			return nil, 0, 0, err
		}
	}
	objParser, err := NewObjParser(p.src)
	if err != nil {
		return nil, 0, 0, err
	}
	obj, err := objParser.ParseObject()
	if err != nil {
		return nil, 0, 0, err
	}
	dict, ok := obj.(*Dictionary)
	if !ok {
		return nil, 0, 0, &pdxerr.MissingTrailerError{}
	}
	sec.Trailer = dict

	var prev, xrefStm int64
	if v, ok := dict.Get("Prev").(Integer); ok {
		prev = int64(v)
	}
	if v, ok := dict.Get("XRefStm").(Integer); ok {
		xrefStm = int64(v)
	}
	return sec, prev, xrefStm, nil
}

// parseStreamSection parses an xref-stream object: "N G obj <<dict>>
// stream ... endstream endobj".
func (p *XrefParser) parseStreamSection(offset int64) (*XrefSection, int64, int64, error) {
	objParser, err := NewObjParser(p.src)
	if err != nil {
		return nil, 0, 0, err
	}
	_, obj, err := objParser.ParseIndirectObject()
	if err != nil {
		return nil, 0, 0, err
	}
	stream, ok := obj.(*Stream)
	if !ok {
		return nil, 0, 0, &pdxerr.CorruptXrefError{Reason: "expected xref stream object", Offset: offset}
	}
	if stream.Dict.GetName("Type") != "XRef" {
		return nil, 0, 0, &pdxerr.CorruptXrefError{Reason: "indirect object at offset is not /Type /XRef", Offset: offset}
	}
	raw, err := ReadStreamRaw(p.src, stream)
	if err != nil {
		return nil, 0, 0, err
	}
	entries, err := DecodeXrefStream(stream.Dict, raw)
	if err != nil {
		return nil, 0, 0, err
	}

	sec := NewXrefSection(offset, SectionStream)
	sec.Entries = entries
	sec.Trailer = stream.Dict

	var prev int64
	if v, ok := stream.Dict.Get("Prev").(Integer); ok {
		prev = int64(v)
	}
	return sec, prev, 0, nil
}
