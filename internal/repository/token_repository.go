package repository

import (
	"sort"
	"sync"
)

// TokenRepository holds the device tokens that receive run notifications.
type TokenRepository struct {
	tokens map[string]struct{}
	mu     sync.RWMutex
}

// NewTokenRepository seeds the repository with configured tokens.
func NewTokenRepository(tokens []string) *TokenRepository {
	r := &TokenRepository{tokens: make(map[string]struct{})}
	for _, t := range tokens {
		r.RegisterToken(t)
	}
	return r
}

// RegisterToken adds a device token. Empty tokens are ignored.
func (r *TokenRepository) RegisterToken(token string) {
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = struct{}{}
}

// GetAllTokens returns all registered tokens in sorted order.
func (r *TokenRepository) GetAllTokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]string, 0, len(r.tokens))
	for token := range r.tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
