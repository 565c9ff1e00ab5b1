package ident

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Attendee code parameters. Codes are short enough to read out loud at a
// check-in desk, so distinct emails can share a code.
const (
	codeSeed    int32 = 5381
	codeModulus       = 100000
	codeDigits        = 5
)

// NormalizeEmail trims surrounding whitespace and applies Unicode NFC so the
// same address typed on different devices (composed vs decomposed accents)
// maps to one attendee. Case is preserved: the local part of an address is
// case-sensitive and the cloud compares emails verbatim.
func NormalizeEmail(email string) string {
	return norm.NFC.String(strings.TrimSpace(email))
}

// Code derives the 5-digit attendee code for an email. It is a djb2 hash
// (h = h*33 + c) accumulated over UTF-16 code units with 32-bit signed
// wraparound, reduced modulo 100000 and zero-padded. The UTF-16 walk keeps
// codes identical to ones minted by the browser check-in stations.
//
// Callers pass the stored (normalized) email.
func Code(email string) string {
	h := codeSeed
	for _, unit := range utf16.Encode([]rune(email)) {
		h = (h << 5) + h + int32(unit)
	}

	n := int64(h)
	if n < 0 {
		n = -n
	}

	return fmt.Sprintf("%0*d", codeDigits, n%codeModulus)
}

// ValidCode reports whether s has the shape of an attendee code.
func ValidCode(s string) bool {
	if len(s) != codeDigits {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
