package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// Consensus key builders

func (kb *KeyBuilder) KeyScopeMembers(scopeID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyScopeMembers, scopeID))
}

func (kb *KeyBuilder) KeyScopeMatches(scopeID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyScopeMatches, scopeID))
}

func (kb *KeyBuilder) KeyVoteIdem(token string) string {
	return kb.BuildKey(fmt.Sprintf(KeyVoteIdem, token))
}

func (kb *KeyBuilder) KeyDeckByScope(scopeID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyDeckByScope, scopeID))
}

// ChannelScopeMatches names the pub/sub channel carrying active-match
// snapshots for one scope. Channels share the environment prefix so staging
// subscribers never see production traffic.
func (kb *KeyBuilder) ChannelScopeMatches(scopeID string) string {
	return kb.BuildKey(fmt.Sprintf(ChannelScopeSubs, scopeID))
}

// KeyCustom builds a key from an arbitrary pattern
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	key := fmt.Sprintf(pattern, args...)
	return kb.BuildKey(key)
}
