package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ChirpChat/module/chat/model"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// Producer enqueues push-notification records for the external notifier
// service. Keyed by chat so one chat's notifications stay ordered within a
// partition.
type Producer struct {
	sp    sarama.SyncProducer
	topic string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return &Producer{sp: sp, topic: topic}, nil
}

type notifyRecord struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Targets   []string  `json:"targets"`
	Preview   string    `json:"preview,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NotifyNewMessage produces one record per accepted message. The preview is
// truncated; the notifier fetches the rest if it needs it.
func (p *Producer) NotifyNewMessage(_ context.Context, m *model.Message, targets []string) error {
	preview := m.Text
	if len(preview) > 120 {
		preview = preview[:120]
	}
	raw, err := json.Marshal(notifyRecord{
		MessageID: m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.UserID,
		Targets:   targets,
		Preview:   preview,
		SentAt:    m.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "notify marshal")
	}
	_, _, err = p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(m.ChatID),
		Value: sarama.ByteEncoder(raw),
	})
	return errors.Wrap(err, "notify send")
}

func (p *Producer) Close() error {
	return p.sp.Close()
}
