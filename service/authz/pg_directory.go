package authz

import (
	"context"
	"errors"

	"PPCollab/service/auth"
	"PPCollab/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier pgxpool.Pool 满足该接口，测试里可以替换
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgDirectory 关系库版本的目录，表结构见 queries
type PgDirectory struct {
	q Querier
}

func NewPgDirectory(q Querier) *PgDirectory {
	return &PgDirectory{q: q}
}

// OpenPgPool 建连并 ping 一次
func OpenPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.WrapMsg(err, "pgxpool new")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "pgxpool ping")
	}
	return pool, nil
}

const (
	qUser = `SELECT id, display_name, COALESCE(avatar, '') FROM users WHERE id = $1`

	qChannel = `SELECT c.id, c.workspace_id, c.visibility,
       COALESCE(ARRAY(SELECT m.user_id FROM channel_members m WHERE m.channel_id = c.id), '{}')
FROM channels c WHERE c.id = $1`

	qProject = `SELECT p.id, p.workspace_id,
       COALESCE(ARRAY(SELECT m.user_id FROM project_members m WHERE m.project_id = p.id), '{}')
FROM projects p WHERE p.id = $1`

	qWorkspaceMember = `SELECT EXISTS(SELECT 1 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2)`
)

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrRecordNotFound.WrapMsg(what, "id", id)
	}
	return errs.WrapMsg(err, "pg query", "table", what, "id", id)
}

func (d *PgDirectory) FindIdentity(ctx context.Context, id string) (*auth.Identity, error) {
	var u auth.Identity
	if err := d.q.QueryRow(ctx, qUser, id).Scan(&u.ID, &u.DisplayName, &u.AvatarRef); err != nil {
		return nil, notFound(err, "users", id)
	}
	return &u, nil
}

func (d *PgDirectory) Channel(ctx context.Context, id string) (*Channel, error) {
	var (
		ch  Channel
		vis string
	)
	if err := d.q.QueryRow(ctx, qChannel, id).Scan(&ch.ID, &ch.WorkspaceID, &vis, &ch.Members); err != nil {
		return nil, notFound(err, "channels", id)
	}
	ch.Visibility = normalizeVisibility(vis)
	return &ch, nil
}

func (d *PgDirectory) Project(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := d.q.QueryRow(ctx, qProject, id).Scan(&p.ID, &p.WorkspaceID, &p.Members); err != nil {
		return nil, notFound(err, "projects", id)
	}
	return &p, nil
}

func (d *PgDirectory) IsWorkspaceMember(ctx context.Context, workspaceID, identityID string) (bool, error) {
	var ok bool
	if err := d.q.QueryRow(ctx, qWorkspaceMember, workspaceID, identityID).Scan(&ok); err != nil {
		return false, errs.WrapMsg(err, "pg query", "table", "workspace_members", "id", workspaceID)
	}
	return ok, nil
}
