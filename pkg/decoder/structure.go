package decoder

import (
	"errors"
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// maxNesting bounds how many sequences and items may be open at once.
const maxNesting = 64

var (
	errNestingTooDeep = errors.New("sequence nesting too deep")
	errValueOverrun   = errors.New("value length exceeds remaining data")
)

// longLengthVRs carry a reserved word and a 32-bit length in explicit VR
// encodings.
var longLengthVRs = map[string]bool{
	"NA": true, "OB": true, "OD": true, "OF": true, "OL": true, "OW": true,
	"SQ": true, "UN": true, "UC": true, "UR": true, "UT": true,
}

// checkStructure walks the element headers of body without recursing and
// fails when sequences nest deeper than maxNesting or a defined length runs
// past the end of the data. Value contents are skipped, not decoded.
func checkStructure(body []byte, l layout) error {
	// end offset of each open container, -1 when closed by a delimiter
	var open []int
	pos := 0
	for len(body)-pos >= 8 {
		for n := len(open); n > 0 && open[n-1] >= 0 && pos >= open[n-1]; n-- {
			open = open[:n-1]
		}

		t := tag.Tag{Group: l.order.Uint16(body[pos:]), Element: l.order.Uint16(body[pos+2:])}
		if t.Group == 0xFFFE {
			length := l.order.Uint32(body[pos+4:])
			pos += 8
			switch t {
			case tag.Item:
				end, err := containerEnd(body, pos, length)
				if err != nil {
					return err
				}
				if open = append(open, end); len(open) > maxNesting {
					return fmt.Errorf("%w: more than %d levels", errNestingTooDeep, maxNesting)
				}
			case tag.ItemDelimitationItem, tag.SequenceDelimitationItem:
				if n := len(open); n > 0 && open[n-1] < 0 {
					open = open[:n-1]
				}
			}
			continue
		}

		vr, length, size, err := elementHeader(body[pos:], t, l)
		if err != nil {
			return err
		}
		pos += size

		switch {
		case t != tag.PixelData && (vr == "SQ" || (vr == tag.UnknownVR && length == tag.VLUndefinedLength)):
			end, err := containerEnd(body, pos, length)
			if err != nil {
				return err
			}
			if open = append(open, end); len(open) > maxNesting {
				return fmt.Errorf("%w: more than %d levels", errNestingTooDeep, maxNesting)
			}
		case length == tag.VLUndefinedLength:
			if pos, err = skipFragments(body, pos, l); err != nil {
				return err
			}
		default:
			if int64(length) > int64(len(body)-pos) {
				return fmt.Errorf("%w: %v needs %d bytes", errValueOverrun, t, length)
			}
			pos += int(length)
		}
	}
	return nil
}

// elementHeader decodes the VR and value length following tag t and
// returns the header size in bytes.
func elementHeader(b []byte, t tag.Tag, l layout) (string, uint32, int, error) {
	if l.implicit {
		return impliedVR(t), l.order.Uint32(b[4:]), 8, nil
	}
	vr := string(b[4:6])
	if !longLengthVRs[vr] {
		length := uint32(l.order.Uint16(b[6:]))
		if length == 0xFFFF {
			length = tag.VLUndefinedLength
		}
		return vr, length, 8, nil
	}
	if len(b) < 12 {
		return "", 0, 0, fmt.Errorf("%w: header of %v", errValueOverrun, t)
	}
	return vr, l.order.Uint32(b[8:]), 12, nil
}

func impliedVR(t tag.Tag) string {
	if t == tag.PixelData {
		return "OW"
	}
	info, err := tag.Find(t)
	if err != nil {
		return tag.UnknownVR
	}
	return info.VRs[0]
}

func containerEnd(body []byte, pos int, length uint32) (int, error) {
	if length == tag.VLUndefinedLength {
		return -1, nil
	}
	if int64(length) > int64(len(body)-pos) {
		return 0, fmt.Errorf("%w: container needs %d bytes", errValueOverrun, length)
	}
	return pos + int(length), nil
}

// skipFragments steps over the items of an undefined length byte value up
// to and including its sequence delimiter.
func skipFragments(body []byte, pos int, l layout) (int, error) {
	for len(body)-pos >= 8 {
		t := tag.Tag{Group: l.order.Uint16(body[pos:]), Element: l.order.Uint16(body[pos+2:])}
		length := l.order.Uint32(body[pos+4:])
		pos += 8
		if t == tag.SequenceDelimitationItem {
			return pos, nil
		}
		if t != tag.Item || length == tag.VLUndefinedLength {
			continue
		}
		if int64(length) > int64(len(body)-pos) {
			return 0, fmt.Errorf("%w: fragment needs %d bytes", errValueOverrun, length)
		}
		pos += int(length)
	}
	return len(body), nil
}
