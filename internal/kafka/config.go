package kafka

import (
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic names for all events published by the platform
const (
	TopicPaymentCompleted  = "hearth.payment.completed"
	TopicPaymentRefunded   = "hearth.payment.refunded"
	TopicTransactionStatus = "hearth.transaction.status"

	TopicWebhookReceived = "hearth.webhook.received"

	TopicDLQ = "hearth.dlq"
)

// Event types for outbox
const (
	EventPaymentCompleted  = "hearth.payment.completed"
	EventPaymentRefunded   = "hearth.payment.refunded"
	EventTransactionStatus = "hearth.transaction.status"
	EventWebhookReceived   = "hearth.webhook.received"
)

type Config struct {
	Brokers           []string
	ProducerTimeout   time.Duration
	RequiredAcks      kgo.Acks
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxPollRecords    int
	MaxRetries        int
	RetryBackoff      time.Duration
}

func DefaultConfig(brokers []string) *Config {
	return &Config{
		Brokers:           brokers,
		ProducerTimeout:   10 * time.Second,
		RequiredAcks:      kgo.AllISRAcks(),
		SessionTimeout:    10 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		MaxPollRecords:    100,
		MaxRetries:        5,
		RetryBackoff:      1 * time.Second,
	}
}
