package authz

import (
	"regexp"
	"strings"

	"PPCollab/tools/errs"
)

// RoomKind 房间类型
type RoomKind string

const (
	KindChannel RoomKind = "channel"
	KindProject RoomKind = "project"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Room 广播范围，key 形如 channel:<id> / project:<id>
type Room struct {
	Kind RoomKind
	ID   string
}

func (r Room) Key() string { return string(r.Kind) + ":" + r.ID }

func (r Room) String() string { return r.Key() }

func ChannelRoom(id string) (Room, error) { return newRoom(KindChannel, id) }

func ProjectRoom(id string) (Room, error) { return newRoom(KindProject, id) }

func newRoom(kind RoomKind, id string) (Room, error) {
	id = strings.TrimSpace(id)
	if !idPattern.MatchString(id) {
		return Room{}, errs.ErrMalformedRequest.WrapMsg("invalid room id", "kind", kind, "id", id)
	}
	return Room{Kind: kind, ID: id}, nil
}

// ParseRoom 解析 "channel:abc" 形式的 key
func ParseRoom(key string) (Room, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return Room{}, errs.ErrMalformedRequest.WrapMsg("invalid room key", "key", key)
	}
	switch RoomKind(kind) {
	case KindChannel, KindProject:
		return newRoom(RoomKind(kind), id)
	default:
		return Room{}, errs.ErrMalformedRequest.WrapMsg("unknown room kind", "key", key)
	}
}
