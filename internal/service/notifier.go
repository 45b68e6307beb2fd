package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tablepick-backend/internal/domain"
	"tablepick-backend/pkg/redis"

	"go.uber.org/zap"
)

// MatchNotifier delivers full current-state snapshots of a scope's active
// matches to subscribed observers. Snapshots, not deltas: every publication
// carries the complete active list for the scope. Ordering is promised only
// within one scope; across scopes publications race freely.
type MatchNotifier interface {
	// PublishMatches broadcasts the scope's current active-match snapshot.
	PublishMatches(ctx context.Context, scopeID string, matches []domain.MatchRecord) error

	// SubscribeMatches opens a snapshot stream for one scope. The returned
	// cancel func tears the subscription down and closes the channel.
	SubscribeMatches(ctx context.Context, scopeID string) (<-chan []domain.MatchRecord, func(), error)
}

// RedisMatchNotifier fans snapshots out over Redis pub/sub, one channel per
// scope, so every API instance sees matches created by its peers.
type RedisMatchNotifier struct {
	redis  *redis.Client
	logger *zap.Logger
}

func NewRedisMatchNotifier(redisClient *redis.Client, logger *zap.Logger) *RedisMatchNotifier {
	return &RedisMatchNotifier{
		redis:  redisClient,
		logger: logger,
	}
}

var _ MatchNotifier = (*RedisMatchNotifier)(nil)

// PublishMatches broadcasts the snapshot on the scope's channel
func (n *RedisMatchNotifier) PublishMatches(ctx context.Context, scopeID string, matches []domain.MatchRecord) error {
	if matches == nil {
		matches = []domain.MatchRecord{}
	}

	payload, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("failed to marshal match snapshot: %w", err)
	}

	channel := n.redis.KeyBuilder.ChannelScopeMatches(scopeID)
	if err := n.redis.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("failed to publish match snapshot: %w", err)
	}

	n.logger.Debug("Published match snapshot",
		zap.String("scope_id", scopeID),
		zap.Int("matches", len(matches)))

	return nil
}

// SubscribeMatches opens a pub/sub subscription and pumps decoded snapshots
// into the returned channel until cancelled
func (n *RedisMatchNotifier) SubscribeMatches(ctx context.Context, scopeID string) (<-chan []domain.MatchRecord, func(), error) {
	channel := n.redis.KeyBuilder.ChannelScopeMatches(scopeID)
	pubsub := n.redis.Subscribe(ctx, channel)

	// Force the subscription onto the wire before handing the stream back,
	// so a snapshot published right after subscribing is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to scope %s: %w", scopeID, err)
	}

	snapshots := make(chan []domain.MatchRecord, 1)
	done := make(chan struct{})

	go func() {
		defer close(snapshots)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var matches []domain.MatchRecord
				if err := json.Unmarshal([]byte(msg.Payload), &matches); err != nil {
					n.logger.Warn("Dropping undecodable match snapshot",
						zap.String("scope_id", scopeID),
						zap.Error(err))
					continue
				}
				select {
				case snapshots <- matches:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { close(done) })
		if err := pubsub.Close(); err != nil {
			n.logger.Debug("Failed to close match subscription",
				zap.String("scope_id", scopeID),
				zap.Error(err))
		}
	}

	return snapshots, cancel, nil
}
