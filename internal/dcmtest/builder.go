// Package dcmtest assembles DICOM byte streams for tests: Part 10 files or
// bare data sets in any of the uncompressed transfer syntaxes, with
// sequences and encapsulated pixel data when a test needs them.
package dcmtest

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/flate"
)

// Transfer syntax UIDs understood by the builder.
const (
	ImplicitLE = "1.2.840.10008.1.2"
	ExplicitLE = "1.2.840.10008.1.2.1"
	ExplicitBE = "1.2.840.10008.1.2.2"
	DeflatedLE = "1.2.840.10008.1.2.1.99"
)

// Common tags, group in the high 16 bits.
const (
	TagInstanceNumber       uint32 = 0x00200013
	TagImagePositionPatient uint32 = 0x00200032
	TagSliceLocation        uint32 = 0x00201041
	TagRows                 uint32 = 0x00280010
	TagColumns              uint32 = 0x00280011
	TagRescaleIntercept     uint32 = 0x00281052
	TagRescaleSlope         uint32 = 0x00281053
	TagPixelData            uint32 = 0x7FE00010
	TagModality             uint32 = 0x00080060
	TagReferencedImageSeq   uint32 = 0x00081140
	TagReferencedSOPUID     uint32 = 0x00081155
)

const undefined = 0xFFFFFFFF

// Builder accumulates data elements in insertion order.
type Builder struct {
	uid      string
	header   bool
	order    binary.ByteOrder
	explicit bool
	body     bytes.Buffer
}

// New returns a Builder producing a Part 10 file in the given syntax.
func New(uid string) *Builder {
	b := &Builder{uid: uid, header: true, order: binary.LittleEndian, explicit: true}
	switch uid {
	case ImplicitLE:
		b.explicit = false
	case ExplicitBE:
		b.order = binary.BigEndian
	}
	return b
}

// WithoutHeader drops the preamble and meta header; the output is a bare
// data set.
func (b *Builder) WithoutHeader() *Builder {
	b.header = false
	return b
}

// Element appends one element with a raw, already encoded value.
func (b *Builder) Element(tag uint32, vr string, value []byte) *Builder {
	writeElement(&b.body, b.order, b.explicit, tag, vr, value)
	return b
}

// Text appends a backslash joined string element padded to even length.
func (b *Builder) Text(tag uint32, vr string, values ...string) *Builder {
	var v []byte
	for i, s := range values {
		if i > 0 {
			v = append(v, '\\')
		}
		v = append(v, s...)
	}
	if len(v)%2 == 1 {
		pad := byte(' ')
		if vr == "UI" {
			pad = 0
		}
		v = append(v, pad)
	}
	return b.Element(tag, vr, v)
}

// US appends an unsigned short element.
func (b *Builder) US(tag uint32, v uint16) *Builder {
	buf := make([]byte, 2)
	b.order.PutUint16(buf, v)
	return b.Element(tag, "US", buf)
}

// Frame appends Rows, Columns and native 16-bit Pixel Data.
func (b *Builder) Frame(rows, cols uint16, samples []int16) *Builder {
	return b.US(TagRows, rows).US(TagColumns, cols).Pixels(samples)
}

// Pixels appends native OW pixel data.
func (b *Builder) Pixels(samples []int16) *Builder {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		b.order.PutUint16(buf[2*i:], uint16(s))
	}
	return b.Element(TagPixelData, "OW", buf)
}

// EncapsulatedPixels appends pixel data of undefined length made of an
// empty offset table followed by the fragments.
func (b *Builder) EncapsulatedPixels(fragments ...[]byte) *Builder {
	writeHeader(&b.body, b.order, b.explicit, TagPixelData, "OB", undefined)
	writeItem(&b.body, b.order, nil)
	for _, f := range fragments {
		writeItem(&b.body, b.order, f)
	}
	writeDelimiter(&b.body, b.order, 0xFFFEE0DD)
	return b
}

// Sequence appends an SQ element whose items are the element streams of
// the given builders, which must share this builder's syntax. With
// undefinedLength both the sequence and its items are delimited.
func (b *Builder) Sequence(tag uint32, undefinedLength bool, items ...*Builder) *Builder {
	var content bytes.Buffer
	for _, it := range items {
		if undefinedLength {
			writeDelimiterLength(&content, b.order, 0xFFFEE000, undefined)
			content.Write(it.body.Bytes())
			writeDelimiter(&content, b.order, 0xFFFEE00D)
		} else {
			writeItem(&content, b.order, it.body.Bytes())
		}
	}
	if undefinedLength {
		writeHeader(&b.body, b.order, b.explicit, tag, "SQ", undefined)
		b.body.Write(content.Bytes())
		writeDelimiter(&b.body, b.order, 0xFFFEE0DD)
		return b
	}
	writeHeader(&b.body, b.order, b.explicit, tag, "SQ", uint32(content.Len()))
	b.body.Write(content.Bytes())
	return b
}

// Item returns an empty builder sharing b's encoding, for Sequence items.
func (b *Builder) Item() *Builder {
	return &Builder{uid: b.uid, order: b.order, explicit: b.explicit}
}

// Bytes returns the encoded stream.
func (b *Builder) Bytes() []byte {
	body := b.body.Bytes()
	if b.uid == DeflatedLE {
		var z bytes.Buffer
		w, _ := flate.NewWriter(&z, flate.DefaultCompression)
		_, _ = w.Write(body)
		_ = w.Close()
		body = z.Bytes()
	}
	if !b.header {
		return append([]byte(nil), body...)
	}

	var meta bytes.Buffer
	uid := []byte(b.uid)
	if len(uid)%2 == 1 {
		uid = append(uid, 0)
	}
	writeElement(&meta, binary.LittleEndian, true, 0x00020010, "UI", uid)
	groupLength := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLength, uint32(meta.Len()))

	var out bytes.Buffer
	out.Write(make([]byte, 128))
	out.WriteString("DICM")
	writeElement(&out, binary.LittleEndian, true, 0x00020000, "UL", groupLength)
	out.Write(meta.Bytes())
	out.Write(body)
	return out.Bytes()
}

func writeElement(w *bytes.Buffer, order binary.ByteOrder, explicit bool, tag uint32, vr string, value []byte) {
	writeHeader(w, order, explicit, tag, vr, uint32(len(value)))
	w.Write(value)
}

func writeHeader(w *bytes.Buffer, order binary.ByteOrder, explicit bool, tag uint32, vr string, length uint32) {
	writeTag(w, order, tag)
	if !explicit {
		writeUint32(w, order, length)
		return
	}
	w.WriteString(vr)
	switch vr {
	case "OB", "OD", "OF", "OL", "OV", "OW", "SQ", "UC", "UR", "UT", "UN", "SV", "UV":
		w.Write([]byte{0, 0})
		writeUint32(w, order, length)
	default:
		buf := make([]byte, 2)
		order.PutUint16(buf, uint16(length))
		w.Write(buf)
	}
}

func writeItem(w *bytes.Buffer, order binary.ByteOrder, content []byte) {
	writeDelimiterLength(w, order, 0xFFFEE000, uint32(len(content)))
	w.Write(content)
}

func writeDelimiter(w *bytes.Buffer, order binary.ByteOrder, tag uint32) {
	writeDelimiterLength(w, order, tag, 0)
}

func writeDelimiterLength(w *bytes.Buffer, order binary.ByteOrder, tag, length uint32) {
	writeTag(w, order, tag)
	writeUint32(w, order, length)
}

func writeTag(w *bytes.Buffer, order binary.ByteOrder, tag uint32) {
	buf := make([]byte, 4)
	order.PutUint16(buf[0:], uint16(tag>>16))
	order.PutUint16(buf[2:], uint16(tag))
	w.Write(buf)
}

func writeUint32(w *bytes.Buffer, order binary.ByteOrder, v uint32) {
	buf := make([]byte, 4)
	order.PutUint32(buf, v)
	w.Write(buf)
}
