package authz

import (
	"context"

	"PPCollab/service/auth"
	"PPCollab/tools/errs"

	"go.uber.org/zap"
)

// Directory 成员关系数据源；找不到实体时返回 errs.ErrRecordNotFound
type Directory interface {
	auth.IdentityStore
	Channel(ctx context.Context, id string) (*Channel, error)
	Project(ctx context.Context, id string) (*Project, error)
	IsWorkspaceMember(ctx context.Context, workspaceID, identityID string) (bool, error)
}

// Gatekeeper 加入房间前的授权检查
type Gatekeeper struct {
	dir Directory
	log *zap.Logger
}

func NewGatekeeper(dir Directory, log *zap.Logger) *Gatekeeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gatekeeper{dir: dir, log: log}
}

// Authorize 返回决策；只有数据源故障才返回 error
func (g *Gatekeeper) Authorize(ctx context.Context, identity auth.Identity, room Room) (Decision, error) {
	switch room.Kind {
	case KindChannel:
		ch, err := g.dir.Channel(ctx, room.ID)
		if err != nil {
			return g.lookupFailed(err, room)
		}
		ws, err := g.workspaceMember(ctx, ch.WorkspaceID, ch.Visibility == VisibilityPublic, identity.ID)
		if err != nil {
			return Decision{}, err
		}
		return CanAccessChannel(ch, identity.ID, ws), nil
	case KindProject:
		p, err := g.dir.Project(ctx, room.ID)
		if err != nil {
			return g.lookupFailed(err, room)
		}
		if contains(p.Members, identity.ID) {
			return Allow, nil
		}
		ws, err := g.workspaceMember(ctx, p.WorkspaceID, true, identity.ID)
		if err != nil {
			return Decision{}, err
		}
		return CanAccessProject(p, identity.ID, ws), nil
	default:
		return Decision{}, errs.ErrMalformedRequest.WrapMsg("unknown room kind", "room", room.Key())
	}
}

// Check 把拒绝转成对应的 CodeError，方便 handler 直接返回
func (g *Gatekeeper) Check(ctx context.Context, identity auth.Identity, room Room) error {
	d, err := g.Authorize(ctx, identity, room)
	if err != nil {
		return err
	}
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonNotFound:
		return errs.ErrRoomNotFound.WrapMsg("join denied", "room", room.Key(), "userId", identity.ID)
	default:
		return errs.ErrNotMember.WrapMsg("join denied", "room", room.Key(), "userId", identity.ID)
	}
}

func (g *Gatekeeper) lookupFailed(err error, room Room) (Decision, error) {
	if errs.ErrRecordNotFound.Is(err) {
		return DenyNotFound, nil
	}
	g.log.Warn("room lookup failed", zap.String("room", room.Key()), zap.Error(err))
	return Decision{}, errs.ErrInternal.WrapMsg("room lookup failed", "room", room.Key(), "err", err)
}

func (g *Gatekeeper) workspaceMember(ctx context.Context, workspaceID string, needed bool, identityID string) (bool, error) {
	if !needed || workspaceID == "" {
		return false, nil
	}
	ok, err := g.dir.IsWorkspaceMember(ctx, workspaceID, identityID)
	if err != nil {
		g.log.Warn("workspace lookup failed", zap.String("workspaceId", workspaceID), zap.Error(err))
		return false, errs.ErrInternal.WrapMsg("workspace lookup failed", "workspaceId", workspaceID, "err", err)
	}
	return ok, nil
}
