package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tablepick-backend/internal/domain"
	"tablepick-backend/internal/repository"
	"tablepick-backend/pkg/redis"

	"go.uber.org/zap"
)

// DefaultDeckSize is the number of candidates dealt per deck generation.
const DefaultDeckSize = 20

// CandidateSource supplies the candidate items a deck is built from. The
// catalog itself is owned outside this service; implementations only need
// to return up to limit candidates not present in the exclude set.
type CandidateSource interface {
	Candidates(ctx context.Context, scopeID string, exclude map[string]bool, limit int) ([]domain.Candidate, error)
}

// DeckService deals the shared candidate deck for a scope. Every member of
// a scope sees the same deck generation; a new generation is dealt only
// once every member has voted on every item in the current one, so nobody
// has cards pulled out from under them.
type DeckService struct {
	decks     repository.DeckStore
	votes     repository.VoteLedger
	directory repository.MembershipDirectory
	source    CandidateSource
	redis     *redis.Client
	logger    *zap.Logger
	deckSize  int
}

func NewDeckService(
	decks repository.DeckStore,
	votes repository.VoteLedger,
	directory repository.MembershipDirectory,
	source CandidateSource,
	redisClient *redis.Client,
	logger *zap.Logger,
	deckSize int,
) *DeckService {
	if deckSize <= 0 {
		deckSize = DefaultDeckSize
	}
	return &DeckService{
		decks:     decks,
		votes:     votes,
		directory: directory,
		source:    source,
		redis:     redisClient,
		logger:    logger,
		deckSize:  deckSize,
	}
}

// GetOrCreateDeck returns the scope's current deck, dealing the first
// generation if none exists and advancing to the next generation only when
// the current one is exhausted by every member. memberID is the caller, used
// to resolve solo scopes.
func (s *DeckService) GetOrCreateDeck(ctx context.Context, memberID, scopeID string) (*domain.Deck, error) {
	resolved := ResolveScope(memberID, scopeID)

	// A cache hit serves the current generation without the exhaustion
	// check; regeneration is picked up once the entry expires.
	if cached := s.cachedDeck(ctx, resolved); cached != nil {
		return cached, nil
	}

	deck, err := s.decks.Get(ctx, resolved)
	if errors.Is(err, domain.ErrDeckNotFound) {
		return s.dealFirstDeck(ctx, resolved)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deck: %w", err)
	}

	exhausted, err := s.isExhausted(ctx, resolved, memberID, deck)
	if err != nil {
		// Exhaustion is a freshness optimization; serving the current
		// generation on a failed check is always safe.
		s.logger.Warn("Deck exhaustion check failed, serving current generation",
			zap.String("scope_id", resolved),
			zap.Int("generation", deck.Generation),
			zap.Error(err))
		return deck, nil
	}
	if !exhausted {
		return deck, nil
	}

	return s.regenerate(ctx, resolved, deck)
}

func (s *DeckService) dealFirstDeck(ctx context.Context, scopeID string) (*domain.Deck, error) {
	candidates, err := s.source.Candidates(ctx, scopeID, nil, s.deckSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}

	deck := &domain.Deck{
		ScopeID:    scopeID,
		Generation: 1,
		ItemIDs:    candidateIDs(candidates),
	}

	// Concurrent first deals collapse: the loser receives the winner's deck.
	created, err := s.decks.CreateIfAbsent(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("failed to create deck: %w", err)
	}

	s.cacheDeckAsync(created)
	return created, nil
}

// isExhausted reports whether every member of the scope has voted on every
// item in the deck. For solo scopes the roster is just the caller.
func (s *DeckService) isExhausted(ctx context.Context, scopeID, memberID string, deck *domain.Deck) (bool, error) {
	if len(deck.ItemIDs) == 0 {
		return true, nil
	}

	var memberIDs []string
	if domain.IsSoloScope(scopeID) {
		memberIDs = []string{memberID}
	} else {
		members, err := s.directory.GetMembers(ctx, scopeID)
		if err != nil {
			return false, err
		}
		for _, member := range members {
			memberIDs = append(memberIDs, member.MemberID)
		}
	}

	for _, id := range memberIDs {
		voted, err := s.votes.VotedItemIDs(ctx, scopeID, id)
		if err != nil {
			return false, err
		}
		votedSet := make(map[string]bool, len(voted))
		for _, itemID := range voted {
			votedSet[itemID] = true
		}
		for _, itemID := range deck.ItemIDs {
			if !votedSet[itemID] {
				return false, nil
			}
		}
	}
	return true, nil
}

func (s *DeckService) regenerate(ctx context.Context, scopeID string, current *domain.Deck) (*domain.Deck, error) {
	exclude := make(map[string]bool, len(current.ItemIDs))
	for _, itemID := range current.ItemIDs {
		exclude[itemID] = true
	}

	candidates, err := s.source.Candidates(ctx, scopeID, exclude, s.deckSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	if len(candidates) == 0 {
		// Catalog ran dry; keep serving the exhausted deck rather than an
		// empty one.
		return current, nil
	}

	// The observed-generation guard makes concurrent regenerations collapse
	// to a single new generation.
	next, err := s.decks.Replace(ctx, scopeID, current.Generation, candidateIDs(candidates))
	if err != nil {
		return nil, fmt.Errorf("failed to replace deck: %w", err)
	}

	s.logger.Info("Deck regenerated",
		zap.String("scope_id", scopeID),
		zap.Int("generation", next.Generation),
		zap.Int("item_count", len(next.ItemIDs)))

	s.cacheDeckAsync(next)
	return next, nil
}

func (s *DeckService) cachedDeck(ctx context.Context, scopeID string) *domain.Deck {
	if s.redis == nil {
		return nil
	}
	cachedData, err := s.redis.Get(ctx, s.redis.KeyBuilder.KeyDeckByScope(scopeID))
	if err != nil || cachedData == "" {
		return nil
	}
	var deck domain.Deck
	if err := json.Unmarshal([]byte(cachedData), &deck); err != nil {
		return nil
	}
	return &deck
}

func candidateIDs(candidates []domain.Candidate) []string {
	itemIDs := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		itemIDs = append(itemIDs, candidate.ItemID)
	}
	return itemIDs
}

func (s *DeckService) cacheDeckAsync(deck *domain.Deck) {
	if s.redis == nil || deck == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data, err := json.Marshal(deck)
		if err != nil {
			return
		}
		if err := s.redis.Set(ctx, s.redis.KeyBuilder.KeyDeckByScope(deck.ScopeID), string(data), redis.TTLDeck); err != nil {
			s.logger.Debug("Failed to cache deck",
				zap.String("scope_id", deck.ScopeID),
				zap.Error(err))
		}
	}()
}
