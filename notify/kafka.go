package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

//go:generate mockgen -destination=mock/mock_kafka.go -package=mock github.com/mqy/minichat/notify IKafkaWriter

const (
	DefaultAlertTopic = "minichat-alerts"

	kafkaWriteTimeout = 3 * time.Second
	alertMaxBytes     = 4096
)

type IKafkaWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaSink publishes alerts to a kafka topic, where an external push
// service delivers them to the user's devices.
type KafkaSink struct {
	writer IKafkaWriter
	user   string
}

// KafkaAlert is the kafka message value.
type KafkaAlert struct {
	User string `json:"user"`
	Alert
	Time int64 `json:"time"`
}

func NewKafkaWriter(brokers []string, topic string) IKafkaWriter {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Dialer: &kafka.Dialer{
			Timeout:   kafkaWriteTimeout,
			DualStack: true,
		},
	})
}

// NewKafkaSink creates a sink keyed by user, so that alerts for one user
// land on one partition in order.
func NewKafkaSink(writer IKafkaWriter, user string) *KafkaSink {
	return &KafkaSink{writer: writer, user: user}
}

func (s *KafkaSink) RequestPermission() (bool, error) {
	return true, nil
}

func (s *KafkaSink) Notify(alert Alert) error {
	value, err := json.Marshal(&KafkaAlert{User: s.user, Alert: alert, Time: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("error marshal alert: %v", err)
	}
	if len(value) > alertMaxBytes {
		return fmt.Errorf("alert exceeds max limit: %d bytes", alertMaxBytes)
	}

	km := kafka.Message{
		Key:   []byte(s.user),
		Value: value,
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("error write to kafka: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
