// Package kafka publishes forecast documents to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// maxMessageBytes bounds one forecast message. A full CONUS grid is a few MB
// of JSON before compression.
const maxMessageBytes = 16 << 20

// Writer produces one message per forecast to a Kafka topic.
// It implements pipeline.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Compression:  kafkago.Zstd,
		BatchBytes:   maxMessageBytes,
	}
	return &Writer{writer: w, logger: logger}
}

// WriteForecast publishes f keyed by its cycle, so consumers of a compacted
// topic keep the latest document per run and forecast hour.
func (w *Writer) WriteForecast(ctx context.Context, f *domain.Forecast) error {
	msg, err := serializeToMessage(f)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish forecast: %w", err)
	}
	w.logger.Info("forecast published", "topic", w.writer.Topic, "key", string(msg.Key), "bytes", len(msg.Value))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a forecast into a Kafka message.
func serializeToMessage(f *domain.Forecast) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(messageKey(f)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(uuid.NewString())},
			{Key: "run_date", Value: []byte(f.RunDate)},
			{Key: "forecast", Value: []byte(f.Forecast)},
			{Key: "generated", Value: []byte(f.Generated)},
			{Key: "cells", Value: []byte(fmt.Sprint(len(f.Features)))},
		},
		Time: generatedAt(f),
	}, nil
}

// messageKey matches domain.Cycle.Key for the forecast's cycle.
func messageKey(f *domain.Forecast) string {
	return f.RunDate + f.RunHour + "-" + f.Forecast
}

func generatedAt(f *domain.Forecast) time.Time {
	t, err := time.Parse(time.RFC3339, f.Generated)
	if err != nil {
		return time.Time{}
	}
	return t
}
