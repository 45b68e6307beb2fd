package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tablepick-backend/internal/domain"
	"tablepick-backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVoteLedger struct {
	mu    sync.Mutex
	votes map[string]*domain.Vote // scope|item|member

	upsertErr error
	readErr   error
}

func newFakeVoteLedger() *fakeVoteLedger {
	return &fakeVoteLedger{votes: make(map[string]*domain.Vote)}
}

func voteKey(scopeID, itemID, memberID string) string {
	return scopeID + "|" + itemID + "|" + memberID
}

func (f *fakeVoteLedger) UpsertVote(_ context.Context, vote *domain.Vote) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *vote
	stored.VotedAt = time.Now()
	f.votes[voteKey(vote.ScopeID, vote.ItemID, vote.MemberID)] = &stored
	vote.VotedAt = stored.VotedAt
	return nil
}

func (f *fakeVoteLedger) GetVote(_ context.Context, scopeID, itemID, memberID string) (*domain.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if vote, ok := f.votes[voteKey(scopeID, itemID, memberID)]; ok {
		stored := *vote
		return &stored, nil
	}
	return nil, domain.ErrVoteNotFound
}

func (f *fakeVoteLedger) AffirmativeVoters(_ context.Context, scopeID, itemID string) ([]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var voters []string
	for _, vote := range f.votes {
		if vote.ScopeID == scopeID && vote.ItemID == itemID && vote.Dir == domain.DirectionRight {
			voters = append(voters, vote.MemberID)
		}
	}
	return voters, nil
}

func (f *fakeVoteLedger) VotedItemIDs(_ context.Context, scopeID, memberID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var itemIDs []string
	for _, vote := range f.votes {
		if vote.ScopeID == scopeID && vote.MemberID == memberID && !seen[vote.ItemID] {
			seen[vote.ItemID] = true
			itemIDs = append(itemIDs, vote.ItemID)
		}
	}
	return itemIDs, nil
}

func (f *fakeVoteLedger) ItemSnapshot(_ context.Context, scopeID, itemID string) (*domain.ItemSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Vote
	for _, vote := range f.votes {
		if vote.ScopeID != scopeID || vote.ItemID != itemID {
			continue
		}
		if latest == nil || vote.VotedAt.After(latest.VotedAt) {
			latest = vote
		}
	}
	if latest == nil {
		return nil, domain.ErrItemNotFound
	}
	snapshot := latest.Snapshot
	return &snapshot, nil
}

func (f *fakeVoteLedger) UnmatchedAffirmativeItems(_ context.Context, since time.Time, limit int) ([]repository.ScopeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var pairs []repository.ScopeItem
	for _, vote := range f.votes {
		if vote.Dir != domain.DirectionRight || domain.IsSoloScope(vote.ScopeID) || vote.VotedAt.Before(since) {
			continue
		}
		key := vote.ScopeID + "|" + vote.ItemID
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, repository.ScopeItem{ScopeID: vote.ScopeID, ItemID: vote.ItemID})
		if len(pairs) == limit {
			break
		}
	}
	return pairs, nil
}

type fakeMatchStore struct {
	mu      sync.Mutex
	matches map[string]*domain.MatchRecord // scope|item
	creates int
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{matches: make(map[string]*domain.MatchRecord)}
}

func (f *fakeMatchStore) CreateIfAbsent(_ context.Context, match *domain.MatchRecord) (bool, *domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := match.ScopeID + "|" + match.ItemID
	if existing, ok := f.matches[key]; ok {
		return false, existing, nil
	}
	stored := *match
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.matches[key] = &stored
	f.creates++
	return true, &stored, nil
}

func (f *fakeMatchStore) Get(_ context.Context, scopeID, itemID string) (*domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if match, ok := f.matches[scopeID+"|"+itemID]; ok {
		return match, nil
	}
	return nil, domain.ErrMatchNotFound
}

func (f *fakeMatchStore) ListActive(_ context.Context, scopeID string) ([]domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MatchRecord
	for _, match := range f.matches {
		if match.ScopeID == scopeID && match.Status == domain.MatchStatusActive {
			out = append(out, *match)
		}
	}
	return out, nil
}

func (f *fakeMatchStore) UpdateStatus(_ context.Context, scopeID, itemID string, status domain.MatchStatus) (*domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	match, ok := f.matches[scopeID+"|"+itemID]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	match.Status = status
	match.UpdatedAt = time.Now()
	return match, nil
}

type fakeDirectory struct {
	mu      sync.Mutex
	rosters map[string][]domain.Member
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{rosters: make(map[string][]domain.Member)}
}

func (f *fakeDirectory) setRoster(scopeID string, memberIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]domain.Member, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, domain.Member{MemberID: id, DisplayName: id})
	}
	f.rosters[scopeID] = members
}

func (f *fakeDirectory) GetMembers(_ context.Context, scopeID string) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.rosters[scopeID]
	if !ok || len(members) == 0 {
		return nil, domain.ErrScopeNotFound
	}
	return members, nil
}

func newTestSwipeService(ledger *fakeVoteLedger, store *fakeMatchStore, directory *fakeDirectory) *SwipeService {
	return NewSwipeService(ledger, store, directory, nil, nil, zap.NewNop(), time.Second)
}

func rightVote(scopeID, itemID string) *domain.VoteRequest {
	return &domain.VoteRequest{
		ScopeID: scopeID,
		Dir:     domain.DirectionRight,
		Snapshot: domain.ItemSnapshot{
			ItemID: itemID,
			Kind:   domain.ItemKindRestaurant,
			Restaurant: &domain.RestaurantMeta{
				Name: "Test Spot",
			},
		},
	}
}

func leftVote(scopeID, itemID string) *domain.VoteRequest {
	req := rightVote(scopeID, itemID)
	req.Dir = domain.DirectionLeft
	return req
}

func TestSubmitVote_UnanimousTrio(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob", "carol")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	resp, err := svc.SubmitVote(ctx, "alice", rightVote("scope-1", "item-1"))
	require.NoError(t, err)
	assert.Nil(t, resp.Match, "one of three votes should not match")

	resp, err = svc.SubmitVote(ctx, "bob", rightVote("scope-1", "item-1"))
	require.NoError(t, err)
	assert.Nil(t, resp.Match, "two of three votes should not match")

	resp, err = svc.SubmitVote(ctx, "carol", rightVote("scope-1", "item-1"))
	require.NoError(t, err)
	require.NotNil(t, resp.Match, "third vote should complete the match")
	assert.Equal(t, 3, resp.Match.RequiredCount)
	assert.Equal(t, 3, resp.Match.AffirmativeCount)
	assert.True(t, resp.Match.Unanimous)
	assert.Equal(t, domain.MatchStatusActive, resp.Match.Status)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, resp.Match.MemberIDs)
}

func TestSubmitVote_MajorityOfFive(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-5", "m1", "m2", "m3", "m4", "m5")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	for _, member := range []string{"m1", "m2"} {
		resp, err := svc.SubmitVote(ctx, member, rightVote("scope-5", "item-9"))
		require.NoError(t, err)
		assert.Nil(t, resp.Match)
	}

	resp, err := svc.SubmitVote(ctx, "m3", rightVote("scope-5", "item-9"))
	require.NoError(t, err)
	require.NotNil(t, resp.Match, "three of five is a strict majority")
	assert.Equal(t, 3, resp.Match.RequiredCount)
	assert.False(t, resp.Match.Unanimous)
	matchID := resp.Match.MatchID

	// A fourth affirmative vote returns the same record, never a second one.
	resp, err = svc.SubmitVote(ctx, "m4", rightVote("scope-5", "item-9"))
	require.NoError(t, err)
	require.NotNil(t, resp.Match)
	assert.Equal(t, matchID, resp.Match.MatchID)
	assert.Equal(t, 1, store.creates)
}

func TestSubmitVote_DirectionFlipIsLastWriteWins(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-flip", "alice", "bob", "carol")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	_, err := svc.SubmitVote(ctx, "alice", rightVote("scope-flip", "item-2"))
	require.NoError(t, err)
	_, err = svc.SubmitVote(ctx, "alice", leftVote("scope-flip", "item-2"))
	require.NoError(t, err)

	// Alice flipped to left, so bob and carol alone cannot reach unanimity.
	_, err = svc.SubmitVote(ctx, "bob", rightVote("scope-flip", "item-2"))
	require.NoError(t, err)
	resp, err := svc.SubmitVote(ctx, "carol", rightVote("scope-flip", "item-2"))
	require.NoError(t, err)
	assert.Nil(t, resp.Match)
	assert.Equal(t, 0, store.creates)

	items, err := svc.ListVotedItemIDs(ctx, "alice", "scope-flip")
	require.NoError(t, err)
	assert.Equal(t, []string{"item-2"}, items)
}

func TestSubmitVote_RepeatedVoteIsIdempotent(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.SubmitVote(ctx, "alice", rightVote("scope-1", "item-1"))
		require.NoError(t, err)
	}

	voters, err := ledger.AffirmativeVoters(ctx, "scope-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, voters, "repeats must not inflate the tally")
	assert.Equal(t, 0, store.creates)
}

func TestSubmitVote_SoloScopeNeverMatches(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	req := rightVote("", "item-solo")
	resp, err := svc.SubmitVote(ctx, "alice", req)
	require.NoError(t, err)
	assert.Equal(t, "solo:alice", resp.ScopeID)
	assert.Nil(t, resp.Match)
	assert.Equal(t, 0, store.creates)

	items, err := svc.ListVotedItemIDs(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"item-solo"}, items)
}

func TestSubmitVote_ScopeIsolation(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-a", "alice", "bob")
	directory.setRoster("scope-b", "alice", "bob")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	_, err := svc.SubmitVote(ctx, "alice", rightVote("scope-a", "item-1"))
	require.NoError(t, err)
	resp, err := svc.SubmitVote(ctx, "bob", rightVote("scope-b", "item-1"))
	require.NoError(t, err)
	assert.Nil(t, resp.Match, "votes in different scopes must not combine")

	resp, err = svc.SubmitVote(ctx, "bob", rightVote("scope-a", "item-1"))
	require.NoError(t, err)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "scope-a", resp.Match.ScopeID)

	matchesB, err := svc.ListActiveMatches(ctx, "scope-b")
	require.NoError(t, err)
	assert.Empty(t, matchesB)
}

func TestSubmitVote_TwoMemberGroupRequiresBoth(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("pair", "alice", "bob")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	resp, err := svc.SubmitVote(ctx, "alice", rightVote("pair", "item-1"))
	require.NoError(t, err)
	assert.Nil(t, resp.Match)

	resp, err = svc.SubmitVote(ctx, "bob", rightVote("pair", "item-1"))
	require.NoError(t, err)
	require.NotNil(t, resp.Match)
	assert.True(t, resp.Match.Unanimous)
}

func TestSubmitVote_LeftVotesSkipEvaluation(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob")
	svc := newTestSwipeService(ledger, store, directory)

	resp, err := svc.SubmitVote(context.Background(), "alice", leftVote("scope-1", "item-1"))
	require.NoError(t, err)
	assert.Nil(t, resp.Match)
	assert.Equal(t, domain.DirectionLeft, resp.Dir)
}

func TestSubmitVote_InvalidInput(t *testing.T) {
	svc := newTestSwipeService(newFakeVoteLedger(), newFakeMatchStore(), newFakeDirectory())

	tests := []struct {
		name string
		req  *domain.VoteRequest
	}{
		{
			name: "bad direction",
			req: &domain.VoteRequest{
				Dir:      domain.Direction("up"),
				Snapshot: domain.ItemSnapshot{ItemID: "i", Kind: domain.ItemKindRecipe},
			},
		},
		{
			name: "missing item id",
			req: &domain.VoteRequest{
				Dir:      domain.DirectionRight,
				Snapshot: domain.ItemSnapshot{Kind: domain.ItemKindRecipe},
			},
		},
		{
			name: "bad kind",
			req: &domain.VoteRequest{
				Dir:      domain.DirectionRight,
				Snapshot: domain.ItemSnapshot{ItemID: "i", Kind: domain.ItemKind("movie")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitVote(context.Background(), "alice", tt.req)
			assert.Error(t, err)
		})
	}
}

func TestSubmitVote_WriteFailurePropagates(t *testing.T) {
	ledger := newFakeVoteLedger()
	ledger.upsertErr = fmt.Errorf("connection reset")
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob")
	svc := newTestSwipeService(ledger, newFakeMatchStore(), directory)

	_, err := svc.SubmitVote(context.Background(), "alice", rightVote("scope-1", "item-1"))
	assert.Error(t, err)
}

func TestSubmitVote_EvaluationFailureDoesNotFailVote(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob", "carol")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()
	_, err := svc.SubmitVote(ctx, "alice", rightVote("scope-1", "item-1"))
	require.NoError(t, err)
	_, err = svc.SubmitVote(ctx, "bob", rightVote("scope-1", "item-1"))
	require.NoError(t, err)

	// Ledger reads fail, but the triggering vote is still counted. Two known
	// votes out of three is below threshold, so no match, and crucially no
	// error either.
	ledger.readErr = fmt.Errorf("read timeout")
	resp, err := svc.SubmitVote(ctx, "carol", rightVote("scope-1", "item-1"))
	require.NoError(t, err)
	assert.Nil(t, resp.Match)

	// The vote is durable: once reads recover, a re-evaluation completes
	// the match.
	ledger.readErr = nil
	match, err := svc.MaterializeMatch(ctx, "scope-1", "item-1", "", nil)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.True(t, match.Unanimous)
}

func TestSubmitVote_ConcurrentCompletionCreatesOneMatch(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()

	members := make([]string, 10)
	for i := range members {
		members[i] = fmt.Sprintf("m%d", i)
	}
	directory.setRoster("scope-race", members...)
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()

	var wg sync.WaitGroup
	for _, member := range members {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.SubmitVote(ctx, id, rightVote("scope-race", "item-race"))
			assert.NoError(t, err)
		}(member)
	}
	wg.Wait()

	assert.Equal(t, 1, store.creates, "concurrent completions must materialize exactly one match")

	matches, err := svc.ListActiveMatches(ctx, "scope-race")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "item-race", matches[0].ItemID)
}

func TestUpdateMatchStatus(t *testing.T) {
	ledger := newFakeVoteLedger()
	store := newFakeMatchStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob")
	svc := newTestSwipeService(ledger, store, directory)

	ctx := context.Background()
	_, err := svc.SubmitVote(ctx, "alice", rightVote("scope-1", "item-1"))
	require.NoError(t, err)
	resp, err := svc.SubmitVote(ctx, "bob", rightVote("scope-1", "item-1"))
	require.NoError(t, err)
	require.NotNil(t, resp.Match)

	match, err := svc.UpdateMatchStatus(ctx, &domain.MatchStatusRequest{
		ScopeID: "scope-1",
		ItemID:  "item-1",
		Status:  domain.MatchStatusResolved,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusResolved, match.Status)

	_, err = svc.UpdateMatchStatus(ctx, &domain.MatchStatusRequest{
		ScopeID: "scope-1",
		ItemID:  "item-1",
		Status:  domain.MatchStatus("deleted"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = svc.UpdateMatchStatus(ctx, &domain.MatchStatusRequest{
		ScopeID: "scope-1",
		ItemID:  "missing",
		Status:  domain.MatchStatusResolved,
	})
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}
