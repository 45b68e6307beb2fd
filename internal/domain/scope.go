package domain

import "strings"

// SoloScopePrefix marks a member's private scope. Solo scopes hold that
// member's swipes when no group is active and are never evaluated for
// consensus.
const SoloScopePrefix = "solo:"

// SoloScope returns the private scope identifier for a member.
func SoloScope(memberID string) string {
	return SoloScopePrefix + memberID
}

// IsSoloScope reports whether a scope identifier names a private scope.
func IsSoloScope(scopeID string) bool {
	return strings.HasPrefix(scopeID, SoloScopePrefix)
}
