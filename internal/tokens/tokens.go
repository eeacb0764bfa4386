// Package tokens provides the character-based token estimator used for
// all budget arithmetic. Every component that counts or caps text goes
// through this package so the accounting stays consistent end to end.
package tokens

import "strings"

// CharsPerToken is the estimation ratio. Token counts are ceil(len/4)
// over raw bytes; the same ratio converts caps back into characters.
const CharsPerToken = 4

// Approx estimates the token footprint of a string.
func Approx(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + CharsPerToken - 1) / CharsPerToken
}

// ApproxAll estimates the combined footprint of several strings.
func ApproxAll(ss ...string) int {
	total := 0
	for _, s := range ss {
		total += Approx(s)
	}
	return total
}

// CapText limits a string to at most maxTokens estimated tokens,
// truncating on the character boundary implied by CharsPerToken. It
// returns the (possibly shortened) text and whether it was clipped.
func CapText(s string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return "", s != ""
	}
	if Approx(s) <= maxTokens {
		return s, false
	}
	limit := maxTokens * CharsPerToken
	clipped := strings.TrimRight(s[:limit], " \t\n")
	return clipped, true
}
