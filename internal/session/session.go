// Package session holds the authenticated identity and its persistence.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/wesm/mailsaver/internal/persist"
)

// Session is the authenticated identity of the current user.
type Session struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Verified reports whether the session may be used for remote calls: the
// user id and token are present and the token has not expired. A zero
// ExpiresAt never expires.
func (s *Session) Verified(now time.Time) bool {
	if s == nil || s.UserID == "" || s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

type ctxKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// Load reads the persisted session. ok is false when no user id is stored.
func Load(ctx context.Context, kv persist.Store) (*Session, bool, error) {
	uid, ok, err := kv.Get(ctx, persist.KeyUserID)
	if err != nil {
		return nil, false, fmt.Errorf("load user id: %w", err)
	}
	if !ok || uid == "" {
		return nil, false, nil
	}
	s := &Session{UserID: uid}
	if s.Token, _, err = kv.Get(ctx, persist.KeyToken); err != nil {
		return nil, false, fmt.Errorf("load token: %w", err)
	}
	if s.Email, _, err = kv.Get(ctx, persist.KeyUserEmail); err != nil {
		return nil, false, fmt.Errorf("load email: %w", err)
	}
	exp, ok, err := kv.Get(ctx, persist.KeyTokenExpiry)
	if err != nil {
		return nil, false, fmt.Errorf("load token expiry: %w", err)
	}
	if ok && exp != "" {
		t, err := time.Parse(time.RFC3339, exp)
		if err != nil {
			return nil, false, fmt.Errorf("parse token expiry %q: %w", exp, err)
		}
		s.ExpiresAt = t
	}
	return s, true, nil
}

// Save writes the session to kv.
func Save(ctx context.Context, kv persist.Store, s *Session) error {
	pairs := [][2]string{
		{persist.KeyUserID, s.UserID},
		{persist.KeyUserEmail, s.Email},
		{persist.KeyToken, s.Token},
	}
	if !s.ExpiresAt.IsZero() {
		pairs = append(pairs, [2]string{persist.KeyTokenExpiry, s.ExpiresAt.UTC().Format(time.RFC3339)})
	}
	for _, p := range pairs {
		if err := kv.Set(ctx, p[0], p[1]); err != nil {
			return fmt.Errorf("save %s: %w", p[0], err)
		}
	}
	if s.ExpiresAt.IsZero() {
		if err := kv.Remove(ctx, persist.KeyTokenExpiry); err != nil {
			return fmt.Errorf("remove %s: %w", persist.KeyTokenExpiry, err)
		}
	}
	return nil
}

// Clear removes the session and the cached count from kv.
func Clear(ctx context.Context, kv persist.Store) error {
	for _, k := range []string{
		persist.KeyUserID,
		persist.KeyUserEmail,
		persist.KeyToken,
		persist.KeyTokenExpiry,
		persist.KeyTotalCount,
	} {
		if err := kv.Remove(ctx, k); err != nil {
			return fmt.Errorf("remove %s: %w", k, err)
		}
	}
	return nil
}
