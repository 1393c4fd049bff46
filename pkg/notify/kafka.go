package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/NicolasHaas/gomoderate/pkg/version"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string // topic is <prefix>.<category>
	ClientID    string
}

// Message is the JSON payload published for each event.
type Message struct {
	Channel  string            `json:"channel"`
	Category string            `json:"category"`
	Template string            `json:"template"`
	Embed    Embed             `json:"embed"`
	Values   map[string]string `json:"values"`
	At       time.Time         `json:"at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes rendered embeds for a downstream chat bot.
type KafkaSink struct {
	writer    messageWriter
	prefix    string
	templates *Catalog
	logger    *slog.Logger
}

// NewKafkaSink creates a producer. Categories without a channel are skipped.
func NewKafkaSink(cfg KafkaConfig, templates *Catalog, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = version.UserAgent()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	logger.Info("kafka notification sink initialized", "brokers", strings.Join(cfg.Brokers, ","), "topic_prefix", cfg.TopicPrefix)
	return newKafkaSink(w, cfg.TopicPrefix, templates, logger)
}

func newKafkaSink(w messageWriter, prefix string, templates *Catalog, logger *slog.Logger) *KafkaSink {
	if prefix == "" {
		prefix = "moderation"
	}
	return &KafkaSink{writer: w, prefix: prefix, templates: templates, logger: logger}
}

// Topic returns the topic for a category.
func (s *KafkaSink) Topic(category string) string {
	return s.prefix + "." + category
}

// Emit publishes ev, keyed by the affected player so one player's events
// stay ordered within a partition.
func (s *KafkaSink) Emit(ctx context.Context, ev Event) error {
	channel := s.templates.Channel(ev.Category)
	if channel == "" {
		return nil
	}
	embed, ok := s.templates.Render(ev)
	if !ok {
		s.logger.Warn("embed template not found", "template", ev.Template)
		return nil
	}

	payload, err := json.Marshal(Message{
		Channel:  channel,
		Category: ev.Category,
		Template: ev.Template,
		Embed:    embed,
		Values:   ev.Placeholders,
		At:       ev.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", ev.Template, err)
	}

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.Topic(ev.Category),
		Key:   []byte(ev.Placeholders["player"]),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("notify: publish %s: %w", ev.Template, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
