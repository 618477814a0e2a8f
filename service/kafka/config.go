package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config REST 层通过 Kafka 投递领域事件时的消费配置
type Config struct {
	Brokers           []string `yaml:"brokers"`
	GroupID           string   `yaml:"groupId"`
	Topics            []string `yaml:"topics"`
	InitialOffset     string   `yaml:"initialOffset"` // newest/oldest
	Version           string   `yaml:"version"`       // 例如 2.1.0
	EnsureTopics      bool     `yaml:"ensureTopics"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replicationFactor"`
}

func (c *Config) setDefaults() {
	if c.GroupID == "" {
		c.GroupID = "collab-gateway"
	}
	if len(c.Topics) == 0 {
		c.Topics = []string{"collab.events"}
	}
	if c.Partitions <= 0 {
		c.Partitions = 8
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
}

// BuildConfig 消费端的 sarama 配置
func BuildConfig(c Config) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, err
		}
		cfg.Version = v
	}

	switch strings.ToLower(c.InitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}
