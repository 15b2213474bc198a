package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
)

const (
	// preamble, "DICM" and the explicit little endian (0002,0000) element
	metaPrefixLen = 128 + 4 + 12

	inflateRatio = 64
	inflateFloor = 16 << 20
)

var (
	errInflateLimit   = errors.New("inflated data set exceeds size limit")
	errUnknownSyntax  = errors.New("unsupported transfer syntax")
	errBadGroupLength = errors.New("file meta group length out of range")
)

// layout says where the data set body starts and how it is encoded.
type layout struct {
	offset   int
	order    binary.ByteOrder
	implicit bool
	deflated bool
}

// readLayout reads only the file meta group and resolves the body encoding
// from its Transfer Syntax UID. Bare data sets get their encoding guessed
// from the first element.
func readLayout(data []byte) (layout, error) {
	p, err := dicom.NewParser(bytes.NewReader(data), int64(len(data)), nil, dicom.SkipProcessingPixelDataValue())
	if err != nil {
		return layout{}, err
	}
	meta := p.GetMetadata()

	el, err := meta.FindElementByTag(tag.FileMetaInformationGroupLength)
	if err != nil {
		return inferLayout(data, 0), nil
	}
	lengths := intValues(el)
	if len(lengths) != 1 || lengths[0] < 0 || metaPrefixLen+lengths[0] > len(data) {
		return layout{}, errBadGroupLength
	}
	offset := metaPrefixLen + lengths[0]

	values := textValues(&meta, tag.TransferSyntaxUID)
	if len(values) == 0 {
		return inferLayout(data, offset), nil
	}
	order, implicit, err := uid.ParseTransferSyntaxUID(values[0])
	if err != nil {
		return layout{}, fmt.Errorf("%w: %w", errUnknownSyntax, err)
	}
	return layout{
		offset:   offset,
		order:    order,
		implicit: implicit,
		deflated: values[0] == uid.DeflatedExplicitVRLittleEndian,
	}, nil
}

// inferLayout guesses the encoding of a data set that carries no transfer
// syntax. Explicit VR is recognised by two capital letters after the first
// tag, and the byte order is the one giving the smaller first group.
func inferLayout(data []byte, offset int) layout {
	l := layout{offset: offset, order: binary.LittleEndian, implicit: true}
	body := data[offset:]
	if len(body) < 6 || !isUpper(body[4]) || !isUpper(body[5]) {
		return l
	}
	l.implicit = false
	if binary.BigEndian.Uint16(body) < binary.LittleEndian.Uint16(body) {
		l.order = binary.BigEndian
	}
	return l
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

// body returns the encoded data set following the file meta group,
// inflating it first for the deflated syntax.
func (l layout) body(data []byte) ([]byte, error) {
	raw := data[l.offset:]
	if !l.deflated {
		return raw, nil
	}
	return inflate(raw, inflateLimit(len(raw)))
}

func inflateLimit(n int) int64 {
	return max(int64(n)*inflateRatio, inflateFloor)
}

// inflate decompresses a raw deflate stream, refusing output beyond limit
// bytes.
func inflate(compressed []byte, limit int64) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", errInflateLimit, limit)
	}
	return out, nil
}
