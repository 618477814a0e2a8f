package auth

import (
	"context"
	"strings"
	"time"

	"PPCollab/tools/errs"
	"PPCollab/tools/security"

	"go.uber.org/zap"
)

// Identity 握手时解析出的用户身份，连接存活期间不变
type Identity struct {
	ID          string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatar,omitempty"`
}

// IdentityStore 查询用户记录；找不到返回 errs.ErrRecordNotFound
type IdentityStore interface {
	FindIdentity(ctx context.Context, id string) (*Identity, error)
}

// Authenticator 握手凭证 -> Identity，失败统一是 Unauthenticated
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (Identity, error)
}

type JWTAuthenticator struct {
	opts  security.Options
	store IdentityStore
	log   *zap.Logger
}

// NewJWTAuthenticator store 为 nil 时直接使用令牌里的 name/avatar
func NewJWTAuthenticator(opts security.Options, store IdentityStore, log *zap.Logger) *JWTAuthenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuthenticator{opts: opts, store: store, log: log}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, errs.ErrUnauthenticated.WrapMsg("missing credential")
	}
	sub, err := security.Verify(a.opts, credential)
	if err != nil {
		a.log.Debug("verify token failed", zap.String("token", security.HashToken(credential)), zap.Error(err))
		return Identity{}, errs.ErrUnauthenticated.WrapMsg("invalid credential", "err", err)
	}
	if a.store == nil {
		return Identity{ID: sub.ID, DisplayName: sub.DisplayName, AvatarRef: sub.AvatarRef}, nil
	}

	// 只查一次用户记录
	id, err := a.store.FindIdentity(ctx, sub.ID)
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return Identity{}, errs.ErrUnauthenticated.WrapMsg("identity not found", "userId", sub.ID)
		}
		a.log.Warn("identity lookup failed", zap.String("userId", sub.ID), zap.Error(err))
		return Identity{}, errs.ErrUnauthenticated.WrapMsg("identity lookup failed", "userId", sub.ID, "err", err)
	}
	return *id, nil
}

// WithTimeout 给握手鉴权加上时限
func WithTimeout(a Authenticator, d time.Duration) Authenticator {
	if d <= 0 {
		return a
	}
	return timeoutAuthenticator{inner: a, d: d}
}

type timeoutAuthenticator struct {
	inner Authenticator
	d     time.Duration
}

func (t timeoutAuthenticator) Authenticate(ctx context.Context, credential string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	type result struct {
		id  Identity
		err error
	}
	ch := make(chan result, 1)
	go func() {
		id, err := t.inner.Authenticate(ctx, credential)
		ch <- result{id, err}
	}()
	select {
	case r := <-ch:
		return r.id, r.err
	case <-ctx.Done():
		return Identity{}, errs.ErrUnauthenticated.WrapMsg("handshake timeout")
	}
}
