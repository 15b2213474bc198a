package sequencer

import "strings"

// NaturalCompare orders strings so that embedded decimal numbers compare
// by value: "slice2" < "slice10". Digit runs of equal value but different
// zero padding, and any other remaining tie, are resolved bytewise so the
// result is a total order.
func NaturalCompare(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si, sj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			if c := compareDigits(a[si:i], b[sj:j]); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case i < len(a):
		return 1
	case j < len(b):
		return -1
	}
	return strings.Compare(a, b)
}

// NaturalLess reports whether a sorts before b in natural order.
func NaturalLess(a, b string) bool {
	return NaturalCompare(a, b) < 0
}

// compareDigits compares two digit runs by numeric value without
// converting them, so arbitrarily long runs cannot overflow.
func compareDigits(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
