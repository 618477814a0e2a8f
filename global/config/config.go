package config

import (
	"os"
	"strings"
	"time"

	"PPCollab/data/database/mgo/mongoutil"
	"PPCollab/logger"
	"PPCollab/service/authz"
	"PPCollab/service/kafka"
	"PPCollab/service/natsx"
	"PPCollab/service/ratelimit"
	"PPCollab/service/storage/redis"
	"PPCollab/tools"
	"PPCollab/tools/errs"

	"gopkg.in/yaml.v3"
)

const (
	BackboneRedis  = "redis"
	BackboneNats   = "nats"
	BackboneMemory = "memory" // 单进程，多实例时不可用
	BackboneNone   = "none"

	DirectoryStatic   = "static"
	DirectoryMongo    = "mongo"
	DirectoryPostgres = "postgres"
)

// AppConfig 网关全部配置；来源依次为默认值、YAML 文件、Nacos、环境变量
type AppConfig struct {
	Node      NodeConfig       `yaml:"node"`
	Auth      AuthConfig       `yaml:"auth"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	RateLimit ratelimit.Config `yaml:"ratelimit"`
	Backbone  BackboneConfig   `yaml:"backbone"`
	Presence  PresenceConfig   `yaml:"presence"`
	Directory DirectoryConfig  `yaml:"directory"`
	Kafka     KafkaConfig      `yaml:"kafka"`
	Internal  InternalConfig   `yaml:"internal"`
	Log       logger.Config    `yaml:"log"`
	Nacos     NacosConfig      `yaml:"nacos"`
}

type NodeConfig struct {
	InstanceID string `yaml:"instanceId"` // 空时启动生成
	NodeID     int64  `yaml:"nodeId"`     // 雪花 id 节点号
	HTTPPort   int    `yaml:"httpPort"`
	GRPCPort   int    `yaml:"grpcPort"` // 0 不启动 gRPC 健康检查
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwtSecret"`
	Alg              string        `yaml:"alg"`
	Leeway           time.Duration `yaml:"leeway"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
}

type GatewayConfig struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	PongWait       time.Duration `yaml:"pongWait"`
	WriteWait      time.Duration `yaml:"writeWait"`
	SendQueueSize  int           `yaml:"sendQueueSize"`
	MaxPerUser     int           `yaml:"maxPerUser"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type BackboneConfig struct {
	Driver string            `yaml:"driver"`
	Prefix string            `yaml:"prefix"` // 空时取各驱动默认
	Redis  redis.Config      `yaml:"redis"`
	Nats   natsx.NatsxConfig `yaml:"nats"`
}

// PresenceConfig Redis 在线镜像，复用 backbone.redis 的连接参数
type PresenceConfig struct {
	Enabled bool          `yaml:"enabled"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
}

type DirectoryConfig struct {
	Driver   string           `yaml:"driver"`
	Mongo    mongoutil.Config `yaml:"mongo"`
	Postgres PostgresConfig   `yaml:"postgres"`
	Static   authz.StaticSeed `yaml:"static"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type KafkaConfig struct {
	Enabled      bool `yaml:"enabled"`
	kafka.Config `yaml:",inline"`
}

type InternalConfig struct {
	APIKey string `yaml:"apiKey"` // 空则不开放 /internal
}

// Default 代码内默认值
func Default() *AppConfig {
	return &AppConfig{
		Node: NodeConfig{NodeID: 1, HTTPPort: 8080, GRPCPort: 50051},
		Auth: AuthConfig{Alg: "HS256", Leeway: 5 * time.Second, HandshakeTimeout: 5 * time.Second},
		Gateway: GatewayConfig{
			PingInterval:   25 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			SendQueueSize:  256,
			MaxPerUser:     10,
			MaxMessageSize: 64 << 10,
		},
		RateLimit: ratelimit.Config{
			Cooldown:      2 * time.Second,
			Retention:     time.Minute,
			MaxEntries:    10000,
			SweepInterval: 30 * time.Second,
		},
		Backbone: BackboneConfig{
			Driver: BackboneNone,
			Redis:  redis.Config{Addr: "127.0.0.1:6379", PoolSize: 20},
			Nats:   natsx.NatsxConfig{Servers: []string{"nats://127.0.0.1:4222"}},
		},
		Presence:  PresenceConfig{TTL: 2 * time.Minute},
		Directory: DirectoryConfig{Driver: DirectoryStatic},
		Kafka: KafkaConfig{Config: kafka.Config{
			Brokers: []string{"127.0.0.1:9092"},
			GroupID: "collab-gateway",
			Topics:  []string{"collab.events"},
		}},
		Log: logger.Config{Level: "info", Encoding: "console"},
		Nacos: NacosConfig{
			Host:      "127.0.0.1",
			Port:      8848,
			Namespace: "public",
			DataID:    "collab-gateway.yaml",
			Group:     "DEFAULT_GROUP",
			TimeoutMs: 5000,
		},
	}
}

// LoadFile 在当前值上覆盖文件里出现的字段
func (c *AppConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.WrapMsg(err, "read config file", "path", path)
	}
	return c.MergeYAML(data)
}

// MergeYAML 只覆盖出现的字段，未出现的保持原值
func (c *AppConfig) MergeYAML(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errs.WrapMsg(err, "parse yaml config")
	}
	return nil
}

// ApplyEnv COLLAB_* 环境变量优先级最高
func (c *AppConfig) ApplyEnv() {
	c.Node.InstanceID = tools.GetEnv("COLLAB_INSTANCE_ID", c.Node.InstanceID)
	c.Node.NodeID = int64(tools.GetEnvInt("COLLAB_NODE_ID", int(c.Node.NodeID)))
	c.Node.HTTPPort = tools.GetEnvInt("COLLAB_HTTP_PORT", c.Node.HTTPPort)
	c.Node.GRPCPort = tools.GetEnvInt("COLLAB_GRPC_PORT", c.Node.GRPCPort)

	c.Auth.JWTSecret = tools.GetEnv("COLLAB_JWT_SECRET", c.Auth.JWTSecret)
	c.Gateway.AllowedOrigins = tools.GetEnvList("COLLAB_ALLOWED_ORIGINS", c.Gateway.AllowedOrigins)
	c.RateLimit.Cooldown = tools.GetEnvDuration("COLLAB_TYPING_COOLDOWN", c.RateLimit.Cooldown)

	c.Backbone.Driver = tools.GetEnv("COLLAB_BACKBONE", c.Backbone.Driver)
	c.Backbone.Redis.Addr = tools.GetEnv("COLLAB_REDIS_ADDR", c.Backbone.Redis.Addr)
	c.Backbone.Redis.Password = tools.GetEnv("COLLAB_REDIS_PASSWORD", c.Backbone.Redis.Password)
	c.Backbone.Nats.Servers = tools.GetEnvList("COLLAB_NATS_SERVERS", c.Backbone.Nats.Servers)
	c.Presence.Enabled = tools.GetEnvBool("COLLAB_PRESENCE_MIRROR", c.Presence.Enabled)

	c.Directory.Driver = tools.GetEnv("COLLAB_DIRECTORY", c.Directory.Driver)
	c.Directory.Mongo.Uri = tools.GetEnv("COLLAB_MONGO_URI", c.Directory.Mongo.Uri)
	c.Directory.Mongo.Database = tools.GetEnv("COLLAB_MONGO_DB", c.Directory.Mongo.Database)
	c.Directory.Postgres.DSN = tools.GetEnv("COLLAB_PG_DSN", c.Directory.Postgres.DSN)

	c.Kafka.Enabled = tools.GetEnvBool("COLLAB_KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = tools.GetEnvList("COLLAB_KAFKA_BROKERS", c.Kafka.Brokers)

	c.Internal.APIKey = tools.GetEnv("COLLAB_INTERNAL_KEY", c.Internal.APIKey)
	c.Log.Level = tools.GetEnv("COLLAB_LOG_LEVEL", c.Log.Level)
	c.Nacos.Enabled = tools.GetEnvBool("COLLAB_NACOS_ENABLED", c.Nacos.Enabled)
}

// Validate 启动前检查；只拦截必然无法工作的组合
func (c *AppConfig) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errs.New("auth.jwtSecret is required")
	}
	switch c.Backbone.Driver {
	case BackboneRedis, BackboneNats, BackboneMemory, BackboneNone:
	default:
		return errs.New("unknown backbone driver", "driver", c.Backbone.Driver)
	}
	switch c.Directory.Driver {
	case DirectoryStatic:
	case DirectoryMongo:
		if c.Directory.Mongo.Uri == "" && len(c.Directory.Mongo.Address) == 0 {
			return errs.New("directory.mongo needs uri or address")
		}
	case DirectoryPostgres:
		if c.Directory.Postgres.DSN == "" {
			return errs.New("directory.postgres.dsn is required")
		}
	default:
		return errs.New("unknown directory driver", "driver", c.Directory.Driver)
	}
	if c.Node.HTTPPort <= 0 || c.Node.HTTPPort > 65535 {
		return errs.New("invalid node.httpPort", "port", c.Node.HTTPPort)
	}
	if c.Node.GRPCPort < 0 || c.Node.GRPCPort > 65535 {
		return errs.New("invalid node.grpcPort", "port", c.Node.GRPCPort)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errs.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Nacos.Enabled && c.Nacos.DataID == "" {
		return errs.New("nacos.dataId is required when nacos is enabled")
	}
	return nil
}
