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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEvalTimeout bounds the membership and ledger reads performed while
// deriving consensus. Vote recording itself is never subject to this bound.
const DefaultEvalTimeout = 3 * time.Second

// SwipeService accepts vote submissions, routes them to their evaluation
// scope, records them in the ledger, and materializes a match the moment a
// group's threshold is met. Match derivation is a pure function of durable
// ledger plus membership state: any failure after the vote is recorded is
// retried later (next vote, or the reconciliation sweep) and never rolls the
// vote back.
type SwipeService struct {
	votes       repository.VoteLedger
	matches     repository.MatchStore
	directory   repository.MembershipDirectory
	redis       *redis.Client
	cache       *MembershipCache
	notifier    MatchNotifier
	logger      *zap.Logger
	evalTimeout time.Duration
}

// NewSwipeService creates the swipe service. redisClient and notifier may be
// nil; the service then runs uncached and silent, which only costs freshness.
func NewSwipeService(
	votes repository.VoteLedger,
	matches repository.MatchStore,
	directory repository.MembershipDirectory,
	redisClient *redis.Client,
	notifier MatchNotifier,
	logger *zap.Logger,
	evalTimeout time.Duration,
) *SwipeService {
	if evalTimeout <= 0 {
		evalTimeout = DefaultEvalTimeout
	}

	var cache *MembershipCache
	if redisClient != nil {
		cache = NewMembershipCache(redisClient, logger)
	}

	return &SwipeService{
		votes:       votes,
		matches:     matches,
		directory:   directory,
		redis:       redisClient,
		cache:       cache,
		notifier:    notifier,
		logger:      logger,
		evalTimeout: evalTimeout,
	}
}

// ResolveScope maps a submission to its evaluation scope. An explicit scope
// is used as-is; without one the vote lands in the member's solo scope,
// which is private and never evaluated for consensus. Deterministic, no
// side effects.
func ResolveScope(memberID, scopeID string) string {
	if scopeID == "" {
		return domain.SoloScope(memberID)
	}
	return scopeID
}

// SubmitVote records the member's decision and, for an affirmative vote in a
// group scope, attempts to materialize a match. A write failure propagates
// to the caller; an evaluation failure does not, because the vote is already
// durable and derivation can be retried safely.
func (s *SwipeService) SubmitVote(ctx context.Context, memberID string, req *domain.VoteRequest) (*domain.VoteResponse, error) {
	if !req.Dir.Valid() {
		return nil, domain.ErrInvalidDirection
	}
	if req.Snapshot.ItemID == "" || !req.Snapshot.Kind.Valid() {
		return nil, fmt.Errorf("invalid item snapshot: id and kind are required")
	}

	scopeID := ResolveScope(memberID, req.ScopeID)

	vote := &domain.Vote{
		ScopeID:  scopeID,
		ItemID:   req.Snapshot.ItemID,
		MemberID: memberID,
		Dir:      req.Dir,
		Snapshot: req.Snapshot,
	}

	if err := s.votes.UpsertVote(ctx, vote); err != nil {
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	response := &domain.VoteResponse{
		ScopeID: scopeID,
		ItemID:  vote.ItemID,
		Dir:     vote.Dir,
		VotedAt: vote.VotedAt,
	}

	if vote.Dir != domain.DirectionRight || domain.IsSoloScope(scopeID) {
		return response, nil
	}

	match, err := s.MaterializeMatch(ctx, scopeID, vote.ItemID, memberID, &vote.Snapshot)
	if err != nil {
		// The vote is durable; the match will surface on a later vote or
		// the reconciliation sweep.
		s.logger.Warn("Consensus evaluation failed after recorded vote",
			zap.String("scope_id", scopeID),
			zap.String("item_id", vote.ItemID),
			zap.String("member_id", memberID),
			zap.Error(err))
		return response, nil
	}

	response.Match = match
	return response, nil
}

// MaterializeMatch derives the current consensus state for (scope, item) and
// creates the match record when the threshold is met. triggeringMember, when
// non-empty, is always counted affirmative regardless of what the ledger
// read returns, so an imperfect read-after-write never drops the vote that
// started this evaluation. Returns nil with no error when consensus is not
// (yet) possible.
func (s *SwipeService) MaterializeMatch(ctx context.Context, scopeID, itemID, triggeringMember string, snapshot *domain.ItemSnapshot) (*domain.MatchRecord, error) {
	if domain.IsSoloScope(scopeID) {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()

	members, err := s.lookupMembers(ctx, scopeID)
	if errors.Is(err, domain.ErrScopeNotFound) {
		// Scope vanished mid-evaluation. No consensus is possible; the vote
		// itself stays valid.
		s.logger.Debug("Scope not found during evaluation",
			zap.String("scope_id", scopeID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}

	if len(members) < 2 {
		return nil, nil
	}

	roster := make(map[string]bool, len(members))
	memberIDs := make([]string, 0, len(members))
	for _, member := range members {
		roster[member.MemberID] = true
		memberIDs = append(memberIDs, member.MemberID)
	}

	affirmative := map[string]bool{}
	voters, err := s.votes.AffirmativeVoters(ctx, scopeID, itemID)
	if err != nil {
		// Degrade to "no prior votes" rather than failing the flow. The
		// under-count is safe: it can only delay a match, never duplicate
		// one.
		s.logger.Warn("Ledger read failed during evaluation, counting only the triggering vote",
			zap.String("scope_id", scopeID),
			zap.String("item_id", itemID),
			zap.Error(err))
	} else {
		for _, voter := range voters {
			if roster[voter] {
				affirmative[voter] = true
			}
		}
	}
	if triggeringMember != "" && roster[triggeringMember] {
		affirmative[triggeringMember] = true
	}

	if !ConsensusReached(len(affirmative), len(members)) {
		return nil, nil
	}

	match := &domain.MatchRecord{
		MatchID:          uuid.NewString(),
		ScopeID:          scopeID,
		ItemID:           itemID,
		MemberIDs:        memberIDs,
		RequiredCount:    RequiredCount(len(members)),
		AffirmativeCount: len(affirmative),
		Unanimous:        len(affirmative) == len(members),
		Status:           domain.MatchStatusActive,
	}
	if snapshot == nil {
		// Reconciliation has no triggering vote in hand; recover the
		// payload from the ledger.
		if stored, err := s.votes.ItemSnapshot(ctx, scopeID, itemID); err == nil {
			snapshot = stored
		}
	}
	if snapshot != nil {
		match.Snapshot = *snapshot
	} else {
		match.Snapshot = domain.ItemSnapshot{ItemID: itemID}
	}

	created, result, err := s.matches.CreateIfAbsent(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize match: %w", err)
	}

	if created {
		s.logger.Info("Match materialized",
			zap.String("scope_id", scopeID),
			zap.String("item_id", itemID),
			zap.String("match_id", result.MatchID),
			zap.Int("required_count", result.RequiredCount),
			zap.Int("affirmative_count", result.AffirmativeCount),
			zap.Bool("unanimous", result.Unanimous))
		s.afterMatchChange(scopeID)
	}

	return result, nil
}

// ListActiveMatches returns the scope's active matches, served from a short
// Redis snapshot cache when available
func (s *SwipeService) ListActiveMatches(ctx context.Context, scopeID string) ([]domain.MatchRecord, error) {
	if s.redis != nil {
		cacheKey := s.redis.KeyBuilder.KeyScopeMatches(scopeID)
		if cachedData, err := s.redis.Get(ctx, cacheKey); err == nil && cachedData != "" {
			var matches []domain.MatchRecord
			if err := json.Unmarshal([]byte(cachedData), &matches); err == nil {
				return matches, nil
			}
		}
	}

	matches, err := s.matches.ListActive(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	if matches == nil {
		matches = []domain.MatchRecord{}
	}

	if s.redis != nil {
		if data, err := json.Marshal(matches); err == nil {
			_ = s.redis.Set(ctx, s.redis.KeyBuilder.KeyScopeMatches(scopeID), string(data), redis.TTLScopeMatches)
		}
	}

	return matches, nil
}

// GetMatch returns the match for (scope, item)
func (s *SwipeService) GetMatch(ctx context.Context, scopeID, itemID string) (*domain.MatchRecord, error) {
	return s.matches.Get(ctx, scopeID, itemID)
}

// UpdateMatchStatus transitions a match between lifecycle states. Creation
// is monotonic; this only ever touches the status field.
func (s *SwipeService) UpdateMatchStatus(ctx context.Context, req *domain.MatchStatusRequest) (*domain.MatchRecord, error) {
	if !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	match, err := s.matches.UpdateStatus(ctx, req.ScopeID, req.ItemID, req.Status)
	if err != nil {
		return nil, err
	}

	s.afterMatchChange(req.ScopeID)
	return match, nil
}

// ListVotedItemIDs returns the items the member has already voted on in the
// (resolved) scope, for candidate exclusion
func (s *SwipeService) ListVotedItemIDs(ctx context.Context, memberID, scopeID string) ([]string, error) {
	resolved := ResolveScope(memberID, scopeID)
	itemIDs, err := s.votes.VotedItemIDs(ctx, resolved, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list voted items: %w", err)
	}
	if itemIDs == nil {
		itemIDs = []string{}
	}
	return itemIDs, nil
}

// TryIdempotencyLock attempts to acquire a short-lived duplicate-submission
// lock. Returns true when acquired or when Redis is absent: correctness
// never depends on the lock, the ledger upsert is idempotent on its own.
func (s *SwipeService) TryIdempotencyLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	return s.redis.SetNX(ctx, s.redis.KeyBuilder.KeyVoteIdem(token), "1", ttl)
}

// ReleaseIdempotencyLock drops the duplicate-submission lock. Callers must
// release when the write behind the lock did not persist, so a client retry
// is not answered as a duplicate of a vote that never happened.
func (s *SwipeService) ReleaseIdempotencyLock(ctx context.Context, token string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Delete(ctx, s.redis.KeyBuilder.KeyVoteIdem(token)); err != nil {
		s.logger.Warn("Failed to release idempotency lock",
			zap.String("token", token),
			zap.Error(err))
	}
}

// StoredVote returns the member's durable vote for (scope, item), or
// domain.ErrVoteNotFound.
func (s *SwipeService) StoredVote(ctx context.Context, scopeID, itemID, memberID string) (*domain.Vote, error) {
	return s.votes.GetVote(ctx, scopeID, itemID, memberID)
}

// lookupMembers reads the roster, through the cache when one is configured
func (s *SwipeService) lookupMembers(ctx context.Context, scopeID string) ([]domain.Member, error) {
	if s.cache != nil {
		return s.cache.GetMembersWithCache(ctx, scopeID, s.directory.GetMembers)
	}
	return s.directory.GetMembers(ctx, scopeID)
}

// afterMatchChange drops the scope's list cache and publishes a fresh
// snapshot. Best effort: observers fall back to polling on failure.
func (s *SwipeService) afterMatchChange(scopeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.redis != nil {
		if err := s.redis.Delete(ctx, s.redis.KeyBuilder.KeyScopeMatches(scopeID)); err != nil {
			s.logger.Warn("Failed to invalidate match snapshot cache",
				zap.String("scope_id", scopeID),
				zap.Error(err))
		}
	}

	if s.notifier == nil {
		return
	}

	matches, err := s.matches.ListActive(ctx, scopeID)
	if err != nil {
		s.logger.Warn("Failed to load snapshot for notification",
			zap.String("scope_id", scopeID),
			zap.Error(err))
		return
	}
	if err := s.notifier.PublishMatches(ctx, scopeID, matches); err != nil {
		s.logger.Warn("Failed to publish match snapshot",
			zap.String("scope_id", scopeID),
			zap.Error(err))
	}
}
