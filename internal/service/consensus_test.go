package service

import "testing"

func TestRequiredCount(t *testing.T) {
	tests := []struct {
		name        string
		memberCount int
		expected    int
	}{
		{name: "empty scope", memberCount: 0, expected: 0},
		{name: "solo scope", memberCount: 1, expected: 0},
		{name: "pair is unanimous", memberCount: 2, expected: 2},
		{name: "trio is unanimous", memberCount: 3, expected: 3},
		{name: "four needs majority", memberCount: 4, expected: 3},
		{name: "five needs majority", memberCount: 5, expected: 3},
		{name: "six needs majority", memberCount: 6, expected: 4},
		{name: "seven needs majority", memberCount: 7, expected: 4},
		{name: "ten needs majority", memberCount: 10, expected: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredCount(tt.memberCount); got != tt.expected {
				t.Errorf("RequiredCount(%d) = %d, want %d", tt.memberCount, got, tt.expected)
			}
		})
	}
}

func TestConsensusReached(t *testing.T) {
	tests := []struct {
		name             string
		affirmativeCount int
		memberCount      int
		expected         bool
	}{
		{name: "never for empty scope", affirmativeCount: 5, memberCount: 0, expected: false},
		{name: "never for single member", affirmativeCount: 1, memberCount: 1, expected: false},
		{name: "never for single member with inflated tally", affirmativeCount: 10, memberCount: 1, expected: false},
		{name: "pair incomplete", affirmativeCount: 1, memberCount: 2, expected: false},
		{name: "pair unanimous", affirmativeCount: 2, memberCount: 2, expected: true},
		{name: "trio two of three", affirmativeCount: 2, memberCount: 3, expected: false},
		{name: "trio unanimous", affirmativeCount: 3, memberCount: 3, expected: true},
		{name: "five below majority", affirmativeCount: 2, memberCount: 5, expected: false},
		{name: "five at majority", affirmativeCount: 3, memberCount: 5, expected: true},
		{name: "five above majority", affirmativeCount: 4, memberCount: 5, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConsensusReached(tt.affirmativeCount, tt.memberCount); got != tt.expected {
				t.Errorf("ConsensusReached(%d, %d) = %v, want %v",
					tt.affirmativeCount, tt.memberCount, got, tt.expected)
			}
		})
	}
}

func TestRequiredCount_SmallGroupsAreUnanimous(t *testing.T) {
	for memberCount := 2; memberCount <= 3; memberCount++ {
		if got := RequiredCount(memberCount); got != memberCount {
			t.Errorf("RequiredCount(%d) = %d, want unanimity %d", memberCount, got, memberCount)
		}
	}
}

func TestRequiredCount_LargeGroupsAreStrictMajority(t *testing.T) {
	for memberCount := 4; memberCount <= 50; memberCount++ {
		want := memberCount/2 + 1
		if got := RequiredCount(memberCount); got != want {
			t.Errorf("RequiredCount(%d) = %d, want %d", memberCount, got, want)
		}
		// A bare half never satisfies the threshold.
		if ConsensusReached(memberCount/2, memberCount) {
			t.Errorf("ConsensusReached(%d, %d) = true, want false", memberCount/2, memberCount)
		}
	}
}
