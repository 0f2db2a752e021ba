package kafka_client

import "github.com/spacesedan/stackenrich/config"

type KafkaConfig struct {
	Broker  string
	GroupID string
	Topic   string
}

func NewKafkaConfig(cfg config.Config) KafkaConfig {
	topic := cfg.KafkaTopic
	if topic == "" {
		topic = KAFKA_TOPIC_RAW_ITEMS
	}
	return KafkaConfig{
		Broker:  cfg.KafkaBroker,
		GroupID: cfg.KafkaGroupID,
		Topic:   topic,
	}
}
