// Package refcode generates and normalizes payment reference codes.
//
// Banks reformat transfer notes freely: separators get stripped, case gets
// folded, surrounding text gets appended. Matching therefore compares a set
// of candidate forms of the reference against the bank-supplied description
// instead of the raw string alone.
package refcode

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Generate builds a reference code for an owner, e.g.
// "ORDER_42_20240101120000". The timestamp component keeps codes unique
// across successive intents for the same owner.
func Generate(prefix string, ownerID int64, at time.Time) string {
	return fmt.Sprintf("%s_%d_%s", strings.ToUpper(prefix), ownerID, at.UTC().Format("20060102150405"))
}

// Candidates returns the forms of a reference checked against a bank
// description: the raw code, the code with separator characters stripped,
// and the short "<PREFIX><ownerID>" form. Checked case-insensitively, OR'd.
//
// The short form can collide when two owners share a numeric suffix after
// stripping; amount equality is the second gate.
func Candidates(referenceCode, prefix string, ownerID int64) []string {
	return []string{
		referenceCode,
		Strip(referenceCode),
		fmt.Sprintf("%s%d", strings.ToUpper(prefix), ownerID),
	}
}

// Strip removes separator characters (anything that is not a letter or a
// digit) from a reference or description
func Strip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContainsAny reports whether the description contains any of the candidate
// strings, case-insensitively. The description is compared both raw and
// separator-stripped so "ORDER 42" still hits the stripped candidate.
func ContainsAny(description string, candidates []string) bool {
	descUpper := strings.ToUpper(description)
	descStripped := Strip(descUpper)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		cu := strings.ToUpper(c)
		if strings.Contains(descUpper, cu) || strings.Contains(descStripped, Strip(cu)) {
			return true
		}
	}
	return false
}
