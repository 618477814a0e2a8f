package authz

import (
	"context"
	"sync"

	"PPCollab/service/auth"
	"PPCollab/tools/errs"
)

// StaticDirectory 内存目录，开发环境和测试用；可从配置文件加载
type StaticDirectory struct {
	mu         sync.RWMutex
	users      map[string]auth.Identity
	channels   map[string]Channel
	projects   map[string]Project
	workspaces map[string]map[string]struct{}
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		users:      make(map[string]auth.Identity),
		channels:   make(map[string]Channel),
		projects:   make(map[string]Project),
		workspaces: make(map[string]map[string]struct{}),
	}
}

func (d *StaticDirectory) PutUser(id auth.Identity) *StaticDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id.ID] = id
	return d
}

func (d *StaticDirectory) PutChannel(ch Channel) *StaticDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch.Members = append([]string(nil), ch.Members...)
	d.channels[ch.ID] = ch
	return d
}

func (d *StaticDirectory) PutProject(p Project) *StaticDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	p.Members = append([]string(nil), p.Members...)
	d.projects[p.ID] = p
	return d
}

func (d *StaticDirectory) PutWorkspaceMembers(workspaceID string, members ...string) *StaticDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.workspaces[workspaceID]
	if !ok {
		set = make(map[string]struct{}, len(members))
		d.workspaces[workspaceID] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return d
}

func (d *StaticDirectory) FindIdentity(_ context.Context, id string) (*auth.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", "id", id)
	}
	return &u, nil
}

func (d *StaticDirectory) Channel(_ context.Context, id string) (*Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("channel", "id", id)
	}
	return &ch, nil
}

func (d *StaticDirectory) Project(_ context.Context, id string) (*Project, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.projects[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("project", "id", id)
	}
	return &p, nil
}

func (d *StaticDirectory) IsWorkspaceMember(_ context.Context, workspaceID, identityID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.workspaces[workspaceID][identityID]
	return ok, nil
}

// StaticSeed 配置文件里的目录数据
type StaticSeed struct {
	Users []struct {
		ID          string `yaml:"id"`
		DisplayName string `yaml:"displayName"`
		Avatar      string `yaml:"avatar"`
	} `yaml:"users"`
	Workspaces []struct {
		ID      string   `yaml:"id"`
		Members []string `yaml:"members"`
	} `yaml:"workspaces"`
	Channels []struct {
		ID          string   `yaml:"id"`
		WorkspaceID string   `yaml:"workspaceId"`
		Visibility  string   `yaml:"visibility"`
		Members     []string `yaml:"members"`
	} `yaml:"channels"`
	Projects []struct {
		ID          string   `yaml:"id"`
		WorkspaceID string   `yaml:"workspaceId"`
		Members     []string `yaml:"members"`
	} `yaml:"projects"`
}

func (d *StaticDirectory) Load(seed StaticSeed) *StaticDirectory {
	for _, u := range seed.Users {
		d.PutUser(auth.Identity{ID: u.ID, DisplayName: u.DisplayName, AvatarRef: u.Avatar})
	}
	for _, w := range seed.Workspaces {
		d.PutWorkspaceMembers(w.ID, w.Members...)
	}
	for _, c := range seed.Channels {
		d.PutChannel(Channel{ID: c.ID, WorkspaceID: c.WorkspaceID, Visibility: normalizeVisibility(c.Visibility), Members: c.Members})
	}
	for _, p := range seed.Projects {
		d.PutProject(Project{ID: p.ID, WorkspaceID: p.WorkspaceID, Members: p.Members})
	}
	return d
}

// 未知取值按 private 处理，宁可拒绝
func normalizeVisibility(s string) Visibility {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityDirect:
		return Visibility(s)
	default:
		return VisibilityPrivate
	}
}
