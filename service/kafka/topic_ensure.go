package kafka

import (
	"errors"
	"fmt"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopics 不存在就创建；已存在且分区数不足时扩分区（只能增加）
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, partitions int32, rf int16, log *zap.Logger) error {
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		exists := len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError)

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     partitions,
				ReplicationFactor: rf,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"retention.ms":                   strPtr("3600000"),
					"unclean.leader.election.enable": strPtr("false"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				var te *sarama.TopicError
				if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
					log.Info("topic exists (race)", zap.String("topic", t))
					continue
				}
				return fmt.Errorf("create topic %s: %w", t, err)
			}
			log.Info("topic created", zap.String("topic", t), zap.Int32("partitions", partitions), zap.Int16("rf", rf))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if partitions > cur {
			if err := admin.CreatePartitions(t, partitions, nil, false); err != nil {
				return fmt.Errorf("expand partitions %s from %d to %d: %w", t, cur, partitions, err)
			}
			log.Info("topic partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", partitions))
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
