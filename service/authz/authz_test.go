package authz

import (
	"context"
	"errors"
	"testing"

	"PPCollab/service/auth"
	"PPCollab/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoom(t *testing.T) {
	r, err := ParseRoom("channel:abc")
	require.NoError(t, err)
	assert.Equal(t, Room{Kind: KindChannel, ID: "abc"}, r)
	assert.Equal(t, "channel:abc", r.Key())

	r, err = ParseRoom("project:P_1-x")
	require.NoError(t, err)
	assert.Equal(t, KindProject, r.Kind)

	for _, bad := range []string{"", "abc", "channel:", "team:abc", "channel:a b", "channel:a:b"} {
		_, err := ParseRoom(bad)
		assert.True(t, errs.ErrMalformedRequest.Is(err), bad)
	}
}

func TestCanAccessChannel(t *testing.T) {
	pub := &Channel{ID: "c", Visibility: VisibilityPublic}
	priv := &Channel{ID: "c", Visibility: VisibilityPrivate, Members: []string{"u1"}}
	dm := &Channel{ID: "c", Visibility: VisibilityDirect, Members: []string{"u1", "u2"}}

	cases := []struct {
		name string
		ch   *Channel
		id   string
		ws   bool
		want Decision
	}{
		{"missing", nil, "u1", true, DenyNotFound},
		{"public ws member", pub, "u1", true, Allow},
		{"public outsider", pub, "u1", false, DenyNotMember},
		{"private member", priv, "u1", false, Allow},
		{"private ws member only", priv, "u3", true, DenyNotMember},
		{"direct participant", dm, "u2", false, Allow},
		{"direct outsider", dm, "u3", true, DenyNotMember},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanAccessChannel(tc.ch, tc.id, tc.ws))
		})
	}
}

func TestCanAccessProject(t *testing.T) {
	p := &Project{ID: "p", Members: []string{"u1"}}
	assert.Equal(t, Allow, CanAccessProject(p, "u1", false))
	assert.Equal(t, Allow, CanAccessProject(p, "u2", true))
	assert.Equal(t, DenyNotMember, CanAccessProject(p, "u2", false))
	assert.Equal(t, DenyNotFound, CanAccessProject(nil, "u1", true))
}

func fixture() *StaticDirectory {
	return NewStaticDirectory().
		PutUser(auth.Identity{ID: "u1"}).
		PutWorkspaceMembers("w1", "u1", "u2").
		PutChannel(Channel{ID: "general", WorkspaceID: "w1", Visibility: VisibilityPublic}).
		PutChannel(Channel{ID: "secret", WorkspaceID: "w1", Visibility: VisibilityPrivate, Members: []string{"u1"}}).
		PutProject(Project{ID: "apollo", WorkspaceID: "w1", Members: []string{"u3"}})
}

func TestGatekeeper(t *testing.T) {
	g := NewGatekeeper(fixture(), nil)
	ctx := context.Background()
	room := func(k string) Room { r, _ := ParseRoom(k); return r }

	cases := []struct {
		user string
		room string
		want Decision
	}{
		{"u2", "channel:general", Allow},
		{"u9", "channel:general", DenyNotMember},
		{"u1", "channel:secret", Allow},
		{"u2", "channel:secret", DenyNotMember},
		{"u1", "channel:nope", DenyNotFound},
		{"u3", "project:apollo", Allow},
		{"u2", "project:apollo", Allow},
		{"u9", "project:apollo", DenyNotMember},
		{"u1", "project:nope", DenyNotFound},
	}
	for _, tc := range cases {
		d, err := g.Authorize(ctx, auth.Identity{ID: tc.user}, room(tc.room))
		require.NoError(t, err)
		assert.Equal(t, tc.want, d, "%s -> %s", tc.user, tc.room)
	}
}

func TestGatekeeper_CheckHidesReason(t *testing.T) {
	g := NewGatekeeper(fixture(), nil)
	ctx := context.Background()

	nf := g.Check(ctx, auth.Identity{ID: "u1"}, Room{Kind: KindChannel, ID: "nope"})
	nm := g.Check(ctx, auth.Identity{ID: "u2"}, Room{Kind: KindChannel, ID: "secret"})

	assert.True(t, errs.ErrUnauthorized.Is(nf))
	assert.True(t, errs.ErrUnauthorized.Is(nm))
	assert.Equal(t, errs.RoomNotFoundError, errs.Code(nf))
	assert.Equal(t, errs.NotMemberError, errs.Code(nm))
	assert.Equal(t, errs.Message(nf), errs.Message(nm))

	assert.NoError(t, g.Check(ctx, auth.Identity{ID: "u1"}, Room{Kind: KindChannel, ID: "secret"}))
}

type brokenDir struct{ *StaticDirectory }

func (brokenDir) Channel(context.Context, string) (*Channel, error) {
	return nil, errors.New("db down")
}

func TestGatekeeper_LookupFailure(t *testing.T) {
	g := NewGatekeeper(brokenDir{fixture()}, nil)
	_, err := g.Authorize(context.Background(), auth.Identity{ID: "u1"}, Room{Kind: KindChannel, ID: "general"})
	assert.Equal(t, errs.ServerInternalError, errs.Code(err))
}

func TestStaticDirectory_Load(t *testing.T) {
	var seed StaticSeed
	seed.Channels = append(seed.Channels, struct {
		ID          string   `yaml:"id"`
		WorkspaceID string   `yaml:"workspaceId"`
		Visibility  string   `yaml:"visibility"`
		Members     []string `yaml:"members"`
	}{ID: "c1", WorkspaceID: "w1", Visibility: "bogus"})
	d := NewStaticDirectory().Load(seed)
	ch, err := d.Channel(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, VisibilityPrivate, ch.Visibility)
}
