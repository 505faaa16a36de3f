package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/repository"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// SuspensionAuthority reports whether an account may currently write
type SuspensionAuthority interface {
	Suspension(ctx context.Context, userId int64) (*entity.Suspension, error)
}

// RestrictionAuthority answers suspension lookups from the account_restrictions table
type RestrictionAuthority struct {
	repo *repository.RestrictionRepo
}

// NewRestrictionAuthority creates a new RestrictionAuthority
func NewRestrictionAuthority(repos *repository.Repositories) *RestrictionAuthority {
	return &RestrictionAuthority{repo: repos.Restriction}
}

// Suspension resolves the current suspension state of userId
func (a *RestrictionAuthority) Suspension(ctx context.Context, userId int64) (*entity.Suspension, error) {
	row, err := a.repo.Get(ctx, userId)
	if err != nil {
		return nil, err
	}
	return row.Resolve(entity.NowUnixMilli()), nil
}

// Guard is the single place writes are checked against the suspension authority
type Guard struct {
	authority SuspensionAuthority
}

// NewGuard creates a new Guard
func NewGuard(authority SuspensionAuthority) *Guard {
	return &Guard{authority: authority}
}

// CheckWrite returns ErrAccountSuspended when userId may not write.
// The returned suspension is non-nil whenever the lookup succeeded.
func (g *Guard) CheckWrite(ctx context.Context, userId int64) (*entity.Suspension, error) {
	s, err := g.authority.Suspension(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "suspension lookup failed: user_id=%d, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	if s.Suspended {
		if s.Reason != "" {
			return s, errcode.ErrAccountSuspended.WithMsg("%s", s.Reason)
		}
		return s, errcode.ErrAccountSuspended
	}
	return s, nil
}
