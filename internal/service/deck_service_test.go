package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tablepick-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDeckStore struct {
	mu    sync.Mutex
	decks map[string]*domain.Deck
}

func newFakeDeckStore() *fakeDeckStore {
	return &fakeDeckStore{decks: make(map[string]*domain.Deck)}
}

func (f *fakeDeckStore) Get(_ context.Context, scopeID string) (*domain.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if deck, ok := f.decks[scopeID]; ok {
		copied := *deck
		return &copied, nil
	}
	return nil, domain.ErrDeckNotFound
}

func (f *fakeDeckStore) CreateIfAbsent(_ context.Context, deck *domain.Deck) (*domain.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.decks[deck.ScopeID]; ok {
		copied := *existing
		return &copied, nil
	}
	stored := *deck
	stored.CreatedAt = time.Now()
	f.decks[deck.ScopeID] = &stored
	copied := stored
	return &copied, nil
}

func (f *fakeDeckStore) Replace(_ context.Context, scopeID string, observedGeneration int, itemIDs []string) (*domain.Deck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deck, ok := f.decks[scopeID]
	if !ok {
		return nil, domain.ErrDeckNotFound
	}
	if deck.Generation == observedGeneration {
		deck.Generation++
		deck.ItemIDs = itemIDs
		deck.CreatedAt = time.Now()
	}
	copied := *deck
	return &copied, nil
}

func catalogOf(n int) *StaticCatalog {
	items := make([]domain.Candidate, 0, n)
	for i := 0; i < n; i++ {
		itemID := fmt.Sprintf("item-%d", i)
		items = append(items, domain.Candidate{
			ItemID: itemID,
			Snapshot: domain.ItemSnapshot{
				ItemID:     itemID,
				Kind:       domain.ItemKindRestaurant,
				Restaurant: &domain.RestaurantMeta{Name: itemID},
			},
		})
	}
	return NewStaticCatalog(items)
}

func newTestDeckService(store *fakeDeckStore, ledger *fakeVoteLedger, directory *fakeDirectory, catalog *StaticCatalog, deckSize int) *DeckService {
	return NewDeckService(store, ledger, directory, catalog, nil, zap.NewNop(), deckSize)
}

func TestGetOrCreateDeck_DealsFirstGeneration(t *testing.T) {
	store := newFakeDeckStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob")
	svc := newTestDeckService(store, newFakeVoteLedger(), directory, catalogOf(10), 3)

	deck, err := svc.GetOrCreateDeck(context.Background(), "alice", "scope-1")
	require.NoError(t, err)
	assert.Equal(t, "scope-1", deck.ScopeID)
	assert.Equal(t, 1, deck.Generation)
	assert.Equal(t, []string{"item-0", "item-1", "item-2"}, deck.ItemIDs)
}

func TestGetOrCreateDeck_SharedAcrossMembers(t *testing.T) {
	store := newFakeDeckStore()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob")
	svc := newTestDeckService(store, newFakeVoteLedger(), directory, catalogOf(10), 3)

	ctx := context.Background()
	first, err := svc.GetOrCreateDeck(ctx, "alice", "scope-1")
	require.NoError(t, err)
	second, err := svc.GetOrCreateDeck(ctx, "bob", "scope-1")
	require.NoError(t, err)
	assert.Equal(t, first.Generation, second.Generation)
	assert.Equal(t, first.ItemIDs, second.ItemIDs)
}

func TestGetOrCreateDeck_RegeneratesOnlyOnFullExhaustion(t *testing.T) {
	store := newFakeDeckStore()
	ledger := newFakeVoteLedger()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice", "bob")
	svc := newTestDeckService(store, ledger, directory, catalogOf(10), 2)

	ctx := context.Background()
	deck, err := svc.GetOrCreateDeck(ctx, "alice", "scope-1")
	require.NoError(t, err)
	require.Equal(t, []string{"item-0", "item-1"}, deck.ItemIDs)

	voteAll := func(memberID string, itemIDs []string) {
		for _, itemID := range itemIDs {
			err := ledger.UpsertVote(ctx, &domain.Vote{
				ScopeID:  "scope-1",
				ItemID:   itemID,
				MemberID: memberID,
				Dir:      domain.DirectionLeft,
			})
			require.NoError(t, err)
		}
	}

	// Only alice has finished the deck; bob has not, so no regeneration.
	voteAll("alice", deck.ItemIDs)
	same, err := svc.GetOrCreateDeck(ctx, "alice", "scope-1")
	require.NoError(t, err)
	assert.Equal(t, 1, same.Generation)

	voteAll("bob", deck.ItemIDs)
	next, err := svc.GetOrCreateDeck(ctx, "bob", "scope-1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Generation)
	assert.Equal(t, []string{"item-2", "item-3"}, next.ItemIDs, "new generation excludes dealt items")
}

func TestGetOrCreateDeck_SoloScope(t *testing.T) {
	store := newFakeDeckStore()
	ledger := newFakeVoteLedger()
	svc := newTestDeckService(store, ledger, newFakeDirectory(), catalogOf(4), 2)

	ctx := context.Background()
	deck, err := svc.GetOrCreateDeck(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "solo:alice", deck.ScopeID)

	for _, itemID := range deck.ItemIDs {
		err := ledger.UpsertVote(ctx, &domain.Vote{
			ScopeID:  "solo:alice",
			ItemID:   itemID,
			MemberID: "alice",
			Dir:      domain.DirectionRight,
		})
		require.NoError(t, err)
	}

	next, err := svc.GetOrCreateDeck(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Generation)
}

func TestGetOrCreateDeck_ExhaustedCatalogKeepsCurrentDeck(t *testing.T) {
	store := newFakeDeckStore()
	ledger := newFakeVoteLedger()
	directory := newFakeDirectory()
	directory.setRoster("scope-1", "alice")
	// Roster of one: group evaluation never applies, but the deck still
	// serves. Catalog has exactly one deck's worth of items.
	svc := newTestDeckService(store, ledger, directory, catalogOf(2), 2)

	ctx := context.Background()
	deck, err := svc.GetOrCreateDeck(ctx, "alice", "scope-1")
	require.NoError(t, err)

	for _, itemID := range deck.ItemIDs {
		err := ledger.UpsertVote(ctx, &domain.Vote{
			ScopeID:  "scope-1",
			ItemID:   itemID,
			MemberID: "alice",
			Dir:      domain.DirectionLeft,
		})
		require.NoError(t, err)
	}

	same, err := svc.GetOrCreateDeck(ctx, "alice", "scope-1")
	require.NoError(t, err)
	assert.Equal(t, 1, same.Generation, "an empty catalog must not deal an empty deck")
	assert.Equal(t, deck.ItemIDs, same.ItemIDs)
}

func TestStaticCatalog_ExcludeAndLimit(t *testing.T) {
	catalog := catalogOf(5)

	candidates, err := catalog.Candidates(context.Background(), "scope-1", map[string]bool{"item-0": true, "item-2": true}, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "item-1", candidates[0].ItemID)
	assert.Equal(t, "item-3", candidates[1].ItemID)
}
