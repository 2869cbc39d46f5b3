package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/choreloop/choreloop/internal/clock"
)

const (
	tokenKeyPrefix    = "task:completion:token:"
	consumedKeyPrefix = "task:completion:token_used:"
)

// DefaultTokenTTL bounds a minted token's lifetime. Comfortably longer
// than the countdown so a token minted at the start of the countdown is
// always still live at confirm time.
const DefaultTokenTTL = 30 * time.Second

// TokenGenerator mints token values.
// Implemented by UUIDv7Generator (production) and FixedTokens (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-sortable UUIDv7 token values, helpful when
// scanning token keys during debugging.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7 string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedTokens returns predetermined token values for deterministic
// tests. Panics when exhausted, to fail fast on test misconfiguration.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokens creates a generator that returns tokens in order.
func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic("FixedTokens: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// TokenScope is the (task, user) pair a token is bound to.
type TokenScope struct {
	TaskID   string `json:"taskId"`
	UserID   string `json:"userId"`
	MintedAt string `json:"mintedAt"`
}

// Vault mints and redeems capability tokens against the KV store.
// Tokens have no persistence beyond their TTL window.
//
// Single-use is enforced by the store, not by in-process locking:
// redemption is an atomic GETDEL, so two concurrent redemptions of the
// same token cannot both succeed.
type Vault struct {
	rdb redis.UniversalClient
	gen TokenGenerator
	clk clock.Clock
	ttl time.Duration
}

// NewVault creates a token vault.
func NewVault(rdb redis.UniversalClient, gen TokenGenerator, clk clock.Clock, ttl time.Duration) *Vault {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Vault{rdb: rdb, gen: gen, clk: clk, ttl: ttl}
}

// Mint creates a single-use token scoped to (taskID, userID).
func (v *Vault) Mint(ctx context.Context, taskID, userID string) (string, error) {
	scope := TokenScope{
		TaskID:   taskID,
		UserID:   userID,
		MintedAt: v.clk.Now().Format(time.RFC3339),
	}
	payload, err := json.Marshal(scope)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}

	token := v.gen.Generate()
	if err := v.rdb.Set(ctx, tokenKeyPrefix+token, payload, v.ttl).Err(); err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	return token, nil
}

// Redeem consumes a token and returns its scope.
//
// A token redeemed once cannot be redeemed again: the GETDEL removes it
// and a consumed tombstone (kept for the TTL window) lets the second
// redemption fail with TokenUsed rather than TokenUnknown.
func (v *Vault) Redeem(ctx context.Context, token, userID string) (TokenScope, error) {
	val, err := v.rdb.GetDel(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		used, uerr := v.rdb.Exists(ctx, consumedKeyPrefix+token).Result()
		if uerr == nil && used > 0 {
			return TokenScope{}, &TokenError{Code: TokenUsed, Token: token}
		}
		return TokenScope{}, &TokenError{Code: TokenUnknown, Token: token}
	}
	if err != nil {
		return TokenScope{}, fmt.Errorf("redeem token: %w", err)
	}

	var scope TokenScope
	if err := json.Unmarshal([]byte(val), &scope); err != nil {
		return TokenScope{}, fmt.Errorf("redeem token: corrupt scope: %w", err)
	}

	// Tombstone write failure only degrades the second-redeem
	// diagnostic; the redemption itself already happened.
	_ = v.rdb.Set(ctx, consumedKeyPrefix+token, "1", v.ttl).Err()

	if scope.UserID != userID {
		// The token is consumed even on a scope mismatch; a stolen
		// token must not remain redeemable.
		return TokenScope{}, &TokenError{Code: TokenForbidden, Token: token}
	}
	return scope, nil
}
