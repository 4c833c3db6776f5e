package domain

import "strings"

// waterTokens are substrings of a place name that mark it as a body of water.
var waterTokens = []string{"waters", "sea", "ocean", "bay", "channel"}

// NameIndicatesWater reports whether a place name contains a water token.
// Matching is case-insensitive substring matching, so "Chesapeake Bay" and
// "english channel" both match.
func NameIndicatesWater(name string) bool {
	name = strings.ToLower(name)
	for _, tok := range waterTokens {
		if strings.Contains(name, tok) {
			return true
		}
	}
	return false
}
