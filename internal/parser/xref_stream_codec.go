package parser

import (
	"bytes"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/coregx/pdfxref/internal/pdxerr"
)

// DecodeXrefStream turns the decompressed body of an xref-stream object
// (/Type /XRef) into entries keyed by ObjectKey, using the stream's own
// /W, /Index, and /Size fields to interpret the fixed-width binary
// rows.
func DecodeXrefStream(dict *Dictionary, rawBody []byte) (map[ObjectKey]XrefEntry, error) {
	body, err := inflateIfNeeded(dict, rawBody)
	if err != nil {
		return nil, err
	}

	w := dict.GetArray("W")
	if len(w) != 3 {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "xref stream missing /W of length 3"}
	}
	w0 := intFromObject(w[0])
	w1 := intFromObject(w[1])
	w2 := intFromObject(w[2])
	rowWidth := w0 + w1 + w2
	if rowWidth <= 0 {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "xref stream /W sums to zero"}
	}

	body, err = undoPredictor(dict, body, rowWidth)
	if err != nil {
		return nil, err
	}

	index := indexRanges(dict)
	entries := make(map[ObjectKey]XrefEntry)
	pos := 0
	for _, rng := range index {
		for i := int64(0); i < rng.count; i++ {
			if pos+rowWidth > len(body) {
				return nil, &pdxerr.InvalidObjectStreamError{Reason: "xref stream body shorter than /Index implies"}
			}
			row := body[pos : pos+rowWidth]
			pos += rowWidth
			objNum := uint32(rng.start + i)
			entry, err := decodeRow(row, w0, w1, w2)
			if err != nil {
				return nil, err
			}
			entries[ObjectKey{Number: objNum, Generation: entryGeneration(entry)}] = entry
		}
	}
	return entries, nil
}

// entryGeneration picks the ObjectKey generation component matching
// what a classic xref table would store in the same row: the object's
// own generation for in-use entries, the "generation to use when this
// object is reused" field for free entries, and 0 for compressed
// entries (PDF 1.7 Table 18: type 2 entries never carry a generation).
func entryGeneration(e XrefEntry) uint16 {
	switch e.Kind {
	case EntryInUse:
		return e.Generation
	case EntryFree:
		return e.NextGeneration
	default:
		return 0
	}
}

func decodeRow(row []byte, w0, w1, w2 int) (XrefEntry, error) {
	typeField := int64(1) // default type is 1 (in-use) when /W[0] == 0
	off := 0
	if w0 > 0 {
		typeField = beInt(row[off : off+w0])
		off += w0
	}
	field2 := beInt(row[off : off+w1])
	off += w1
	field3 := beInt(row[off : off+w2])

	switch typeField {
	case 0:
		return FreeEntry(uint32(field2), uint16(field3)), nil
	case 1:
		return InUseEntry(field2, uint16(field3)), nil
	case 2:
		return CompressedEntry(uint32(field2), uint32(field3)), nil
	default:
		return XrefEntry{}, &pdxerr.UnsupportedError{What: "xref stream entry type " + itoa(int(typeField))}
	}
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intFromObject(o Object) int {
	if v, ok := o.(Integer); ok {
		return int(v)
	}
	return 0
}

type indexRange struct {
	start, count int64
}

func indexRanges(dict *Dictionary) []indexRange {
	idx := dict.GetArray("Index")
	if len(idx) == 0 || len(idx)%2 != 0 {
		size := dict.GetInt("Size")
		return []indexRange{{start: 0, count: size}}
	}
	ranges := make([]indexRange, 0, len(idx)/2)
	for i := 0; i+1 < len(idx); i += 2 {
		ranges = append(ranges, indexRange{
			start: int64(intFromObject(idx[i])),
			count: int64(intFromObject(idx[i+1])),
		})
	}
	return ranges
}

func inflateIfNeeded(dict *Dictionary, raw []byte) ([]byte, error) {
	filter := dict.GetName("Filter")
	if filter == "" {
		if arr := dict.GetArray("Filter"); len(arr) > 0 {
			if n, ok := arr[0].(Name); ok {
				filter = string(n)
			}
		}
	}
	if filter == "" {
		return raw, nil
	}
	if filter != "FlateDecode" {
		return nil, &pdxerr.UnsupportedError{What: "xref stream filter " + filter}
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "zlib: " + err.Error()}
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, &pdxerr.InvalidObjectStreamError{Reason: "zlib read: " + err.Error()}
	}
	return out, nil
}

// undoPredictor reverses the PNG predictor applied to decompressed
// stream bytes before handing rows of rowWidth back to the caller.
// Columns = rowWidth, as required for xref streams (the /DecodeParms
// /Columns value, when present, must equal the row width).
func undoPredictor(dict *Dictionary, data []byte, rowWidth int) ([]byte, error) {
	parms := decodeParms(dict)
	if parms == nil {
		return data, nil
	}
	predictor := parms.GetInt("Predictor")
	if predictor <= 1 {
		return data, nil
	}
	if predictor != 2 && predictor < 10 {
		return nil, &pdxerr.UnsupportedError{What: "predictor " + itoa(int(predictor))}
	}
	columns := int(parms.GetInt("Columns"))
	if columns <= 0 {
		columns = rowWidth
	}
	colors := parms.GetInt("Colors")
	if colors <= 0 {
		colors = 1
	}
	bpc := parms.GetInt("BitsPerComponent")
	if bpc <= 0 {
		bpc = 8
	}
	bytesPerPixel := int((colors*bpc + 7) / 8)
	if bytesPerPixel < 1 {
		bytesPerPixel = 1
	}
	stride := columns
	if predictor == 2 {
		return undoTIFFPredictor(data, stride, bytesPerPixel), nil
	}
	return undoPNGPredictor(data, stride, bytesPerPixel)
}

func decodeParms(dict *Dictionary) *Dictionary {
	if d, ok := dict.Get("DecodeParms").(*Dictionary); ok {
		return d
	}
	if arr := dict.GetArray("DecodeParms"); len(arr) > 0 {
		if d, ok := arr[0].(*Dictionary); ok {
			return d
		}
	}
	return nil
}

func undoTIFFPredictor(data []byte, stride, bpp int) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	for r := 0; r+stride <= len(out); r += stride {
		row := out[r : r+stride]
		for i := bpp; i < len(row); i++ {
			row[i] += row[i-bpp]
		}
	}
	return out
}

func undoPNGPredictor(data []byte, stride, bpp int) ([]byte, error) {
	rowLen := stride + 1
	if rowLen <= 0 || len(data)%rowLen != 0 {
		return nil, &pdxerr.UnsupportedError{What: "PNG predictor row length mismatch"}
	}
	rows := len(data) / rowLen
	out := make([]byte, rows*stride)
	prev := make([]byte, stride)
	for r := 0; r < rows; r++ {
		rowTag := data[r*rowLen]
		src := data[r*rowLen+1 : r*rowLen+rowLen]
		dst := out[r*stride : r*stride+stride]
		for i := 0; i < stride; i++ {
			var a, b, c byte
			if i >= bpp {
				a = dst[i-bpp]
				c = prev[i-bpp]
			}
			b = prev[i]
			var pred byte
			switch rowTag {
			case 0: // None
				pred = 0
			case 1: // Sub
				pred = a
			case 2: // Up
				pred = b
			case 3: // Average
				pred = byte((int(a) + int(b)) / 2)
			case 4: // Paeth
				pred = paeth(a, b, c)
			default:
				return nil, &pdxerr.UnsupportedError{What: "PNG predictor tag"}
			}
			dst[i] = src[i] + pred
		}
		copy(prev, dst)
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EncodeXrefStream is the symmetric encoder: given the full entry set
// and the highest object number, it produces minimal-width /W fields,
// a minimal contiguous /Index, and the packed row bytes. The body is
// returned uncompressed and unpredicted: no filter is applied, so a
// stream dictionary written for it carries no /Filter unless the
// caller compresses the bytes itself.
func EncodeXrefStream(entries map[ObjectKey]XrefEntry, highestObjectNumber uint32) (body []byte, w [3]int, index []int64) {
	numbers := make([]uint32, 0, len(entries))
	seen := make(map[uint32]XrefEntry, len(entries))
	for k, e := range entries {
		if _, ok := seen[k.Number]; !ok {
			seen[k.Number] = e
			numbers = append(numbers, k.Number)
		}
	}
	sortUint32(numbers)

	w0, w1, w2 := minimalWidths(seen, numbers)

	var buf bytes.Buffer
	ranges := contiguousRanges(numbers)
	for _, rng := range ranges {
		index = append(index, rng.start, rng.count)
		for n := rng.start; n < rng.start+rng.count; n++ {
			e := seen[uint32(n)]
			writeField(&buf, int64(entryTypeCode(e)), w0)
			switch e.Kind {
			case EntryFree:
				writeField(&buf, int64(e.NextFreeNumber), w1)
				writeField(&buf, int64(e.NextGeneration), w2)
			case EntryCompressed:
				writeField(&buf, int64(e.ContainingStreamNumber), w1)
				writeField(&buf, int64(e.IndexWithinStream), w2)
			default:
				writeField(&buf, e.Offset, w1)
				writeField(&buf, int64(e.Generation), w2)
			}
		}
	}
	return buf.Bytes(), [3]int{w0, w1, w2}, index
}

func entryTypeCode(e XrefEntry) int {
	switch e.Kind {
	case EntryFree:
		return 0
	case EntryCompressed:
		return 2
	default:
		return 1
	}
}

func writeField(buf *bytes.Buffer, v int64, width int) {
	for i := width - 1; i >= 0; i-- {
		buf.WriteByte(byte(v >> (8 * uint(i))))
	}
}

func minimalWidths(entries map[uint32]XrefEntry, numbers []uint32) (int, int, int) {
	var maxType, maxField2, maxField3 int64
	for _, n := range numbers {
		e := entries[n]
		t := int64(entryTypeCode(e))
		var f2, f3 int64
		switch e.Kind {
		case EntryFree:
			f2, f3 = int64(e.NextFreeNumber), int64(e.NextGeneration)
		case EntryCompressed:
			f2, f3 = int64(e.ContainingStreamNumber), int64(e.IndexWithinStream)
		default:
			f2, f3 = e.Offset, int64(e.Generation)
		}
		if t > maxType {
			maxType = t
		}
		if f2 > maxField2 {
			maxField2 = f2
		}
		if f3 > maxField3 {
			maxField3 = f3
		}
	}
	return widthFor(maxType), widthFor(maxField2), widthFor(maxField3)
}

func widthFor(max int64) int {
	w := 1
	for (int64(1) << (8 * uint(w))) <= max {
		w++
	}
	return w
}

type uintRange struct {
	start, count int64
}

func contiguousRanges(sortedNumbers []uint32) []uintRange {
	if len(sortedNumbers) == 0 {
		return nil
	}
	var ranges []uintRange
	start := int64(sortedNumbers[0])
	count := int64(1)
	for i := 1; i < len(sortedNumbers); i++ {
		if int64(sortedNumbers[i]) == start+count {
			count++
			continue
		}
		ranges = append(ranges, uintRange{start: start, count: count})
		start = int64(sortedNumbers[i])
		count = 1
	}
	ranges = append(ranges, uintRange{start: start, count: count})
	return ranges
}

func sortUint32(s []uint32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
