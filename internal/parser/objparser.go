package parser

import (
	"fmt"
	"strconv"

	"github.com/coregx/pdfxref/internal/pdxerr"
)

// ObjParser parses the PDF direct-object grammar from a token stream
// produced by a Lexer.
type ObjParser struct {
	lex     *Lexer
	current Token
	peek    Token
	hasPeek bool
}

// NewObjParser creates a parser positioned at the first token read from
// src.
func NewObjParser(src Source) (*ObjParser, error) {
	p := &ObjParser{lex: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ObjParser) advance() error {
	if p.hasPeek {
		p.current = p.peek
		p.hasPeek = false
		return nil
	}
	tok, err := p.lex.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *ObjParser) peekToken() (Token, error) {
	if p.hasPeek {
		return p.peek, nil
	}
	tok, err := p.lex.NextToken()
	if err != nil {
		return tok, err
	}
	p.peek = tok
	p.hasPeek = true
	return tok, nil
}

func (p *ObjParser) expect(tt TokenType) error {
	if p.current.Type != tt {
		return &pdxerr.MalformedError{
			Where:  fmt.Sprintf("%d:%d", p.current.Line, p.current.Column),
			Detail: fmt.Sprintf("expected %s, got %s(%q)", tt, p.current.Type, p.current.Value),
		}
	}
	return p.advance()
}

// ParseObject parses any direct object: number, indirect reference,
// name, string, array, dictionary (or the stream/dictionary pair when
// followed by `stream`), boolean, or null.
//
//nolint:cyclop // object parsing inherently enumerates every PDF type.
func (p *ObjParser) ParseObject() (Object, error) {
	switch p.current.Type {
	case TokenInteger:
		first, err := strconv.ParseInt(p.current.Value, 10, 64)
		if err != nil {
			return nil, &pdxerr.MalformedError{Where: "object", Detail: "invalid integer " + p.current.Value}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenInteger {
			second, err := strconv.ParseInt(p.current.Value, 10, 64)
			if err == nil {
				if pk, perr := p.peekToken(); perr == nil && pk.Type == TokenKeyword && pk.Value == KeywordR {
					if err := p.advance(); err != nil { // consume second int
						return nil, err
					}
					if err := p.advance(); err != nil { // consume R
						return nil, err
					}
					return IndirectRef{Number: uint32(first), Generation: uint16(second)}, nil
				}
			}
		}
		return Integer(first), nil

	case TokenReal:
		v, err := strconv.ParseFloat(p.current.Value, 64)
		if err != nil {
			return nil, &pdxerr.MalformedError{Where: "object", Detail: "invalid real " + p.current.Value}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Real(v), nil

	case TokenString:
		v := String(p.current.Value)
		return v, p.advance()

	case TokenHexString:
		v := HexString(p.current.Value)
		return v, p.advance()

	case TokenName:
		v := Name(p.current.Value)
		return v, p.advance()

	case TokenBoolean:
		v := Boolean(p.current.Value == KeywordTrue)
		return v, p.advance()

	case TokenNull:
		return Null{}, p.advance()

	case TokenArrayStart:
		return p.parseArray()

	case TokenDictStart:
		return p.parseDictOrStream()

	default:
		return nil, &pdxerr.MalformedError{
			Where:  fmt.Sprintf("%d:%d", p.current.Line, p.current.Column),
			Detail: fmt.Sprintf("unexpected token %s", p.current.Type),
		}
	}
}

func (p *ObjParser) parseArray() (Object, error) {
	if err := p.expect(TokenArrayStart); err != nil {
		return nil, err
	}
	arr := Array{}
	for p.current.Type != TokenArrayEnd {
		if p.current.Type == TokenEOF {
			return nil, &pdxerr.MalformedError{Where: "array", Detail: "unexpected EOF"}
		}
		obj, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
	return arr, p.expect(TokenArrayEnd)
}

func (p *ObjParser) parseDictOrStream() (Object, error) {
	dict, err := p.parseDictionary()
	if err != nil {
		return nil, err
	}
	if p.current.Type == TokenKeyword && p.current.Value == KeywordStream {
		return p.finishStream(dict)
	}
	return dict, nil
}

func (p *ObjParser) parseDictionary() (*Dictionary, error) {
	if err := p.expect(TokenDictStart); err != nil {
		return nil, err
	}
	dict := NewDictionary()
	for p.current.Type != TokenDictEnd {
		if p.current.Type == TokenEOF {
			return nil, &pdxerr.MalformedError{Where: "dictionary", Detail: "unexpected EOF"}
		}
		if p.current.Type != TokenName {
			return nil, &pdxerr.MalformedError{
				Where:  fmt.Sprintf("%d:%d", p.current.Line, p.current.Column),
				Detail: fmt.Sprintf("expected name key, got %s", p.current.Type),
			}
		}
		key := p.current.Value
		if err := p.advance(); err != nil {
			return nil, err
		}
		value, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		dict.Set(key, value)
	}
	return dict, p.expect(TokenDictEnd)
}

// finishStream expects the lexer to be positioned at the `stream`
// keyword; it computes the absolute offset/length window of the raw
// stream bytes without materialising them.
func (p *ObjParser) finishStream(dict *Dictionary) (Object, error) {
	src := p.lex.Source()
	// The source already sits just past the `stream` keyword. One EOL
	// (CRLF, LF, or a lone CR) is consumed from it directly; any other
	// byte is left in place as the first byte of the stream data.
	length := dict.GetInt("Length")
	pos := src.Position()
	b, err := src.ReadByte()
	if err != nil {
		return nil, &pdxerr.MalformedError{Where: "stream", Detail: "EOF after 'stream' keyword"}
	}
	if b == '\r' {
		if nb, err := src.PeekByte(); err == nil && nb == '\n' {
			_, _ = src.ReadByte()
		}
	} else if b != '\n' {
		// Tolerate a lone non-EOL byte: treat it as already data.
		_ = src.Seek(pos)
	}
	dataStart := src.Position()
	s := &Stream{Dict: dict, Offset: dataStart, Length: length}

	if length <= 0 {
		// Fallback: scan for "endstream" (malformed /Length).
		n, scanErr := scanForEndstream(src, dataStart)
		if scanErr != nil {
			return nil, scanErr
		}
		s.Length = n
	}

	if err := src.Seek(s.Offset + s.Length); err != nil {
		return nil, err
	}
	// Reset the lexer onto the (possibly re-seeked) source and resync
	// tokens: skip whitespace, expect `endstream`.
	p.lex = NewLexer(src)
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type == TokenKeyword && p.current.Value == KeywordEndstream {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// scanForEndstream is the fallback used when /Length is absent or
// invalid: scan forward for the literal "endstream" and treat
// everything before it (minus a trailing EOL) as stream data.
func scanForEndstream(src Source, from int64) (int64, error) {
	const marker = "endstream"
	if err := src.Seek(from); err != nil {
		return 0, err
	}
	window := make([]byte, 0, len(marker))
	pos := from
	for {
		b, err := src.ReadByte()
		if err != nil {
			return 0, &pdxerr.MalformedError{Where: "stream", Detail: "endstream not found"}
		}
		window = append(window, b)
		if len(window) > len(marker) {
			window = window[1:]
		}
		pos++
		if string(window) == marker {
			end := pos - int64(len(marker))
			n := end - from
			// Trim the single EOL (\r\n, \r, or \n) that precedes
			// `endstream`; it belongs to the line, not the data.
			if n >= 2 {
				if err := src.Seek(end - 2); err == nil {
					var two [2]byte
					if _, rerr := src.ReadInto(two[:]); rerr == nil {
						if two[0] == '\r' && two[1] == '\n' {
							n -= 2
						} else if IsEOL(two[1]) {
							n--
						}
					}
				}
			} else if n == 1 {
				if err := src.Seek(end - 1); err == nil {
					if b, rerr := src.ReadByte(); rerr == nil && IsEOL(b) {
						n--
					}
				}
			}
			return n, nil
		}
	}
}

// ParseIndirectObject parses "N G obj ... endobj" starting at the
// current token, returning the object's key and parsed body.
func (p *ObjParser) ParseIndirectObject() (ObjectKey, Object, error) {
	if p.current.Type != TokenInteger {
		return ObjectKey{}, nil, &pdxerr.MalformedError{Where: "indirect object", Detail: "expected object number"}
	}
	num, err := strconv.ParseUint(p.current.Value, 10, 32)
	if err != nil {
		return ObjectKey{}, nil, &pdxerr.MalformedError{Where: "indirect object", Detail: "invalid object number"}
	}
	if err := p.advance(); err != nil {
		return ObjectKey{}, nil, err
	}
	if p.current.Type != TokenInteger {
		return ObjectKey{}, nil, &pdxerr.MalformedError{Where: "indirect object", Detail: "expected generation number"}
	}
	gen, err := strconv.ParseUint(p.current.Value, 10, 16)
	if err != nil {
		return ObjectKey{}, nil, &pdxerr.MalformedError{Where: "indirect object", Detail: "invalid generation number"}
	}
	if err := p.advance(); err != nil {
		return ObjectKey{}, nil, err
	}
	if p.current.Type != TokenKeyword || p.current.Value != KeywordObj {
		return ObjectKey{}, nil, &pdxerr.MalformedError{Where: "indirect object", Detail: "expected 'obj'"}
	}
	if err := p.advance(); err != nil {
		return ObjectKey{}, nil, err
	}
	obj, err := p.ParseObject()
	if err != nil {
		return ObjectKey{}, nil, err
	}
	if p.current.Type == TokenKeyword && p.current.Value == KeywordEndobj {
		_ = p.advance()
	}
	return ObjectKey{Number: uint32(num), Generation: uint16(gen)}, obj, nil
}

// ReadStreamRaw reads the raw (still-encoded) bytes of s from src.
func ReadStreamRaw(src Source, s *Stream) ([]byte, error) {
	if err := src.Seek(s.Offset); err != nil {
		return nil, err
	}
	buf := make([]byte, s.Length)
	if _, err := src.ReadInto(buf); err != nil {
		return nil, &pdxerr.IoError{Op: "read stream", Err: err}
	}
	return buf, nil
}
