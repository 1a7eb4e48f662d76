// Package eventsvc publishes domain events to kafka.
package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
)

type KafkaPublisher struct {
	producer    sarama.SyncProducer
	topicPrefix string
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer sarama.SyncProducer, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topicPrefix: topicPrefix}
}

// NewSyncProducer connects to the brokers, retrying while they come up.
func NewSyncProducer(conf core.KafkaConfig, logger core.Logger) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = conf.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Version = sarama.V3_4_0_0

	var (
		producer sarama.SyncProducer
		err      error
	)
	for attempt := 1; attempt <= 10; attempt++ {
		producer, err = sarama.NewSyncProducer(conf.Brokers, sc)
		if err == nil {
			return producer, nil
		}
		logger.Warn("waiting for kafka", map[string]interface{}{"attempt": attempt, "error": err.Error()})
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return nil, errors.Wrap(err, "connecting to kafka")
}

// Topic is the topic events of `stream` are written to.
func (p *KafkaPublisher) Topic(stream string) string {
	return p.topicPrefix + stream
}

func (p *KafkaPublisher) Publish(_ context.Context, evt core.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.Topic(evt.Stream),
		Key:       sarama.StringEncoder(evt.Key),
		Value:     sarama.ByteEncoder(data),
		Timestamp: evt.OccurredAt,
		Headers:   []sarama.RecordHeader{{Key: []byte("type"), Value: []byte(evt.Type)}},
	}
	if _, _, err = p.producer.SendMessage(msg); err != nil {
		return errors.Wrapf(err, "sending %s event", evt.Type)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
