package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConf() *AppConfig {
	c := Default()
	c.Auth.JWTSecret = "s3cret"
	return c
}

func TestDefaultNeedsSecret(t *testing.T) {
	c := Default()
	assert.Error(t, c.Validate())

	c.Auth.JWTSecret = "x"
	assert.NoError(t, c.Validate())
	assert.Equal(t, 2*time.Second, c.RateLimit.Cooldown)
	assert.Equal(t, BackboneNone, c.Backbone.Driver)
}

func TestLoadFileOverlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collab.yaml")
	body := `
node:
  instanceId: gw-7
auth:
  jwtSecret: from-file
ratelimit:
  cooldown: 3s
backbone:
  driver: redis
  redis:
    addr: redis:6379
directory:
  driver: static
  static:
    users:
      - id: u1
        displayName: Ada
    channels:
      - id: general
        workspaceId: w1
        visibility: public
kafka:
  enabled: true
  brokers: [k1:9092, k2:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	c := Default()
	require.NoError(t, c.LoadFile(path))
	require.NoError(t, c.Validate())

	assert.Equal(t, "gw-7", c.Node.InstanceID)
	assert.Equal(t, 8080, c.Node.HTTPPort, "untouched fields keep defaults")
	assert.Equal(t, 3*time.Second, c.RateLimit.Cooldown)
	assert.Equal(t, time.Minute, c.RateLimit.Retention)
	assert.Equal(t, "redis:6379", c.Backbone.Redis.Addr)
	assert.Equal(t, 20, c.Backbone.Redis.PoolSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "collab-gateway", c.Kafka.GroupID)
	require.Len(t, c.Directory.Static.Users, 1)
	assert.Equal(t, "Ada", c.Directory.Static.Users[0].DisplayName)
	require.Len(t, c.Directory.Static.Channels, 1)
}

func TestLoadFileErrors(t *testing.T) {
	c := Default()
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, c.MergeYAML([]byte("node: [unclosed")))
	assert.NoError(t, c.MergeYAML([]byte("   \n")))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("COLLAB_JWT_SECRET", "env-secret")
	t.Setenv("COLLAB_BACKBONE", "nats")
	t.Setenv("COLLAB_NATS_SERVERS", "nats://a:4222, nats://b:4222")
	t.Setenv("COLLAB_TYPING_COOLDOWN", "750ms")
	t.Setenv("COLLAB_HTTP_PORT", "9090")
	t.Setenv("COLLAB_KAFKA_ENABLED", "yes")
	t.Setenv("COLLAB_LOG_LEVEL", "")

	c := Default()
	c.ApplyEnv()

	assert.Equal(t, "env-secret", c.Auth.JWTSecret)
	assert.Equal(t, BackboneNats, c.Backbone.Driver)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, c.Backbone.Nats.Servers)
	assert.Equal(t, 750*time.Millisecond, c.RateLimit.Cooldown)
	assert.Equal(t, 9090, c.Node.HTTPPort)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, "info", c.Log.Level, "empty env keeps the current value")
}

func TestApplyEnvBadValuesKeepCurrent(t *testing.T) {
	t.Setenv("COLLAB_HTTP_PORT", "eighty")
	t.Setenv("COLLAB_TYPING_COOLDOWN", "soon")

	c := Default()
	c.ApplyEnv()
	assert.Equal(t, 8080, c.Node.HTTPPort)
	assert.Equal(t, 2*time.Second, c.RateLimit.Cooldown)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *AppConfig)
		ok     bool
	}{
		{"valid", func(c *AppConfig) {}, true},
		{"memory backbone", func(c *AppConfig) { c.Backbone.Driver = BackboneMemory }, true},
		{"unknown backbone", func(c *AppConfig) { c.Backbone.Driver = "kafka" }, false},
		{"unknown directory", func(c *AppConfig) { c.Directory.Driver = "ldap" }, false},
		{"mongo without uri", func(c *AppConfig) { c.Directory.Driver = DirectoryMongo }, false},
		{"mongo with uri", func(c *AppConfig) {
			c.Directory.Driver = DirectoryMongo
			c.Directory.Mongo.Uri = "mongodb://localhost:27017"
		}, true},
		{"postgres without dsn", func(c *AppConfig) { c.Directory.Driver = DirectoryPostgres }, false},
		{"bad http port", func(c *AppConfig) { c.Node.HTTPPort = 0 }, false},
		{"grpc disabled", func(c *AppConfig) { c.Node.GRPCPort = 0 }, true},
		{"kafka without brokers", func(c *AppConfig) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, false},
		{"nacos without data id", func(c *AppConfig) {
			c.Nacos.Enabled = true
			c.Nacos.DataID = ""
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConf()
			tc.mutate(c)
			if tc.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}

func TestReload(t *testing.T) {
	base := validConf()

	next, err := Reload(base, "ratelimit:\n  cooldown: 5s\n")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, next.RateLimit.Cooldown)
	assert.Equal(t, 2*time.Second, base.RateLimit.Cooldown, "base is not mutated")

	same, err := Reload(base, "backbone:\n  driver: carrier-pigeon\n")
	assert.Error(t, err)
	assert.Same(t, base, same)
}

func TestNewNacosSourceRequiresServer(t *testing.T) {
	_, err := NewNacosSource(NacosConfig{}, nil)
	assert.Error(t, err)
}
