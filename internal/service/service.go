// Package service implements the KegTracker use cases on top of the
// repositories, the access evaluator and the token service.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tinouy/kegtracker-backend/internal/domain"
	"github.com/tinouy/kegtracker-backend/internal/repository"
	"github.com/tinouy/kegtracker-backend/pkg/blacklist"
	"github.com/tinouy/kegtracker-backend/pkg/jwt"
)

// PasswordHasher is satisfied by *hash.Argon2.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
}

// Notifier is satisfied by *email.Notifier. Sends never block the caller.
type Notifier interface {
	InviteLink(token string) string
	ResetLink(token string) string
	SendInvite(to, link string)
	SendPasswordReset(to, link string)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// repoErr converts repository sentinels into domain errors. notFound is
// returned for repository.ErrNotFound.
func repoErr(err error, notFound *domain.Error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrDuplicate):
		return domain.WrapError(domain.KindConflict, msg, err)
	case errors.Is(err, repository.ErrReferenced):
		return domain.WrapError(domain.KindConflict, msg, err)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.WrapError(domain.KindInternal, msg, err)
}

func internalErr(msg string, err error) error {
	return domain.WrapError(domain.KindInternal, msg, err)
}

// singleUse enforces the consumed-token rules shared by reset and invite
// tokens: a consumed token is reported as used even after it expired, and a
// token is claimed before the action it guards runs.
type singleUse struct {
	store  blacklist.Store
	tokens *jwt.TokenService
}

// check reports why the token can no longer be used, without claiming it.
func (g singleUse) check(ctx context.Context, id string, expiresAt time.Time) error {
	used, err := g.store.IsConsumed(ctx, id)
	if err != nil {
		return internalErr("failed to check token", err)
	}
	if used {
		return domain.ErrTokenAlreadyUsed
	}
	if g.tokens.Expired(expiresAt) {
		return domain.ErrTokenExpired
	}
	return nil
}

// claim checks the token and records it as consumed. Only one concurrent
// caller can claim a given token.
func (g singleUse) claim(ctx context.Context, id string, expiresAt time.Time) error {
	if err := g.check(ctx, id, expiresAt); err != nil {
		return err
	}
	ok, err := g.store.Consume(ctx, id, expiresAt)
	if err != nil {
		return internalErr("failed to consume token", err)
	}
	if !ok {
		return domain.ErrTokenAlreadyUsed
	}
	return nil
}

func tokenErr(err error) error {
	return domain.WrapError(domain.KindUnauthenticated, "invalid token", err)
}

func newClock(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.New()
	}
	return c
}
