package service

import (
	"context"
	"encoding/json"
	"fmt"

	"tablepick-backend/internal/domain"
	"tablepick-backend/pkg/redis"

	"go.uber.org/zap"
)

// MembershipCache fronts the membership directory with a short-TTL Redis
// cache. Rosters change rarely relative to swipe volume, and the consensus
// design already accepts point-in-time staleness, so a cached roster is as
// valid as a fresh read. All cache state is keyed by scope; there is no
// process-wide roster cache that could leak between groups.
type MembershipCache struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewMembershipCache creates a new membership cache
func NewMembershipCache(redisClient *redis.Client, logger *zap.Logger) *MembershipCache {
	return &MembershipCache{
		redis:  redisClient,
		logger: logger,
	}
}

// GetMembersWithCache retrieves a scope roster with cache-aside fallback to
// the directory
func (c *MembershipCache) GetMembersWithCache(ctx context.Context, scopeID string, directory func(ctx context.Context, scopeID string) ([]domain.Member, error)) ([]domain.Member, error) {
	cacheKey := c.redis.KeyBuilder.KeyScopeMembers(scopeID)

	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var members []domain.Member
		if unmarshalErr := json.Unmarshal([]byte(cachedData), &members); unmarshalErr == nil {
			c.logger.Debug("Membership cache hit", zap.String("scope_id", scopeID))
			return members, nil
		} else {
			c.logger.Warn("Membership cache corrupted, falling back to directory",
				zap.String("scope_id", scopeID),
				zap.Error(unmarshalErr))
		}
	}

	c.logger.Debug("Membership cache miss", zap.String("scope_id", scopeID))
	members, err := directory(ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("membership directory lookup failed: %w", err)
	}

	// Cache asynchronously; a failed write only costs the next read a miss.
	go c.cacheMembersAsync(scopeID, members)

	return members, nil
}

// InvalidateMembers drops the cached roster for a scope
func (c *MembershipCache) InvalidateMembers(ctx context.Context, scopeID string) error {
	cacheKey := c.redis.KeyBuilder.KeyScopeMembers(scopeID)
	if err := c.redis.Delete(ctx, cacheKey); err != nil {
		c.logger.Warn("Failed to invalidate membership cache",
			zap.String("scope_id", scopeID),
			zap.Error(err))
		return err
	}
	return nil
}

// cacheMembersAsync stores a roster with a fresh background context
func (c *MembershipCache) cacheMembersAsync(scopeID string, members []domain.Member) {
	ctx, cancel := context.WithTimeout(context.Background(), redis.TTLScopeMembers)
	defer cancel()

	data, err := json.Marshal(members)
	if err != nil {
		c.logger.Warn("Failed to marshal roster for caching",
			zap.String("scope_id", scopeID),
			zap.Error(err))
		return
	}

	cacheKey := c.redis.KeyBuilder.KeyScopeMembers(scopeID)
	if err := c.redis.Set(ctx, cacheKey, string(data), redis.TTLScopeMembers); err != nil {
		c.logger.Warn("Failed to cache roster",
			zap.String("scope_id", scopeID),
			zap.Error(err))
	}
}
