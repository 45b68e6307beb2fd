package service

// RequiredCount maps a scope's member count to the number of affirmative
// votes needed for a match. Groups of two or three demand unanimity: at that
// size a single dissent should block agreement. From four members up a
// strict majority suffices, since unanimity among many people makes
// agreement practically unreachable. For fewer than two members consensus is
// undefined and the returned count is zero; callers must gate on
// ConsensusReached, which never fires below two members.
func RequiredCount(memberCount int) int {
	switch {
	case memberCount < 2:
		return 0
	case memberCount <= 3:
		return memberCount
	default:
		return memberCount/2 + 1
	}
}

// ConsensusReached reports whether the affirmative tally satisfies the
// threshold for the given member count. Always false below two members,
// which also covers solo scopes.
func ConsensusReached(affirmativeCount, memberCount int) bool {
	if memberCount < 2 {
		return false
	}
	return affirmativeCount >= RequiredCount(memberCount)
}
