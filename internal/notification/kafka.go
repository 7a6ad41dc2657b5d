package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ReportStatusFailed is the delivery report status that fails an attempt.
const ReportStatusFailed = "failed"

type outboundSMS struct {
	Handle      string `json:"handle"`
	Destination string `json:"destination"`
	Text        string `json:"text"`
}

// DeliveryReport is published by the SMS gateway once it knows the fate of a
// message.
type DeliveryReport struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// KafkaSender publishes SMS to a topic consumed by the SMS gateway.
type KafkaSender struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSender builds a sender producing to topic.
func NewKafkaSender(client *kgo.Client, topic string) *KafkaSender {
	return &KafkaSender{client: client, topic: topic}
}

// Send produces the SMS keyed by its handle and waits for the broker ack.
func (s *KafkaSender) Send(ctx context.Context, sms SMS) error {
	rec, err := encodeSMS(s.topic, sms)
	if err != nil {
		return err
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce sms: %w", err)
	}
	return nil
}

func encodeSMS(topic string, sms SMS) (*kgo.Record, error) {
	payload, err := json.Marshal(outboundSMS{Handle: sms.Handle, Destination: sms.Destination, Text: sms.Text})
	if err != nil {
		return nil, fmt.Errorf("encode sms: %w", err)
	}
	return &kgo.Record{Topic: topic, Key: []byte(sms.Handle), Value: payload}, nil
}

// FailureHandler is invoked with the handle of every SMS the gateway reports
// as undeliverable.
type FailureHandler func(ctx context.Context, handle string) error

// ReportConsumer reads delivery reports and forwards failures.
type ReportConsumer struct {
	client    *kgo.Client
	onFailure FailureHandler
	logger    *slog.Logger
}

// NewReportConsumer builds a consumer. The client must be configured with the
// report topic and a consumer group.
func NewReportConsumer(client *kgo.Client, onFailure FailureHandler, logger *slog.Logger) *ReportConsumer {
	return &ReportConsumer{client: client, onFailure: onFailure, logger: logger}
}

// Run polls until ctx is cancelled or the client is closed.
func (c *ReportConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Warn("delivery report fetch failed",
				slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			if err := c.Handle(ctx, rec.Value); err != nil {
				c.logger.Warn("delivery report not applied", slog.String("key", string(rec.Key)), slog.Any("error", err))
			}
		})
	}
}

// Handle decodes one report and forwards it if it signals a failure.
// Reports with any other status are ignored.
func (c *ReportConsumer) Handle(ctx context.Context, payload []byte) error {
	var report DeliveryReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("decode delivery report: %w", err)
	}
	if report.Handle == "" {
		return errors.New("delivery report without handle")
	}
	if !strings.EqualFold(report.Status, ReportStatusFailed) {
		return nil
	}
	return c.onFailure(ctx, report.Handle)
}
