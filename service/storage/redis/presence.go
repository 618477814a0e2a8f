package redis

import (
	"context"
	"time"

	"PPCollab/tools/errs"

	"github.com/redis/go-redis/v9"
)

// PresenceConfig 跨实例在线提示；只用于查询，网关的房间和在场状态仍在本地内存
type PresenceConfig struct {
	InstanceID string
	Prefix     string        // 默认 collab:presence:
	TTL        time.Duration // 心跳续期，实例宕机后自然过期
}

// presence key: <prefix><user>，hash 字段 connID -> instanceID
func (c PresenceConfig) key(user string) string { return c.Prefix + user }

// HSET + EXPIRE 原子执行
// KEYS[1] = presence key
// ARGV[1] = connID  ARGV[2] = instanceID  ARGV[3] = ttlSeconds
const luaOnline = `
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[3]))
return 1
`

// 删除单条连接；hash 空了由 redis 自动删除 key
// 返回：1=删掉了字段；0=不存在（幂等）
const luaOffline = `
return redis.call("HDEL", KEYS[1], ARGV[1])
`

// 只有连接仍登记时才续期
const luaTouch = `
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
  return redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
end
return 0
`

type PresenceStore struct {
	rdb  redis.Scripter
	hash redis.Cmdable
	conf PresenceConfig

	online  *redis.Script
	offline *redis.Script
	touch   *redis.Script
}

// NewPresenceStore rdb 一般是 *redis.Client
func NewPresenceStore(rdb redis.UniversalClient, conf PresenceConfig) *PresenceStore {
	if conf.Prefix == "" {
		conf.Prefix = "collab:presence:"
	}
	if conf.TTL <= 0 {
		conf.TTL = 2 * time.Minute
	}
	return &PresenceStore{
		rdb:     rdb,
		hash:    rdb,
		conf:    conf,
		online:  redis.NewScript(luaOnline),
		offline: redis.NewScript(luaOffline),
		touch:   redis.NewScript(luaTouch),
	}
}

func (s *PresenceStore) ttlSeconds() int64 {
	sec := int64(s.conf.TTL / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

func (s *PresenceStore) Online(ctx context.Context, userID, connID string) error {
	err := s.online.Run(ctx, s.rdb, []string{s.conf.key(userID)}, connID, s.conf.InstanceID, s.ttlSeconds()).Err()
	return errs.WrapMsg(err, "presence online", "userId", userID)
}

func (s *PresenceStore) Offline(ctx context.Context, userID, connID string) error {
	err := s.offline.Run(ctx, s.rdb, []string{s.conf.key(userID)}, connID).Err()
	return errs.WrapMsg(err, "presence offline", "userId", userID)
}

func (s *PresenceStore) Touch(ctx context.Context, userID, connID string) error {
	err := s.touch.Run(ctx, s.rdb, []string{s.conf.key(userID)}, connID, s.ttlSeconds()).Err()
	return errs.WrapMsg(err, "presence touch", "userId", userID)
}

// Lookup connID -> instanceID；不在线返回空 map
func (s *PresenceStore) Lookup(ctx context.Context, userID string) (map[string]string, error) {
	m, err := s.hash.HGetAll(ctx, s.conf.key(userID)).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence lookup", "userId", userID)
	}
	return m, nil
}
