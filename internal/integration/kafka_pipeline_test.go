//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/storm-prob-grid/internal/adapter/file"
	"github.com/couchcryptid/storm-prob-grid/internal/adapter/kafka"
	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/couchcryptid/storm-prob-grid/internal/observability"
	"github.com/couchcryptid/storm-prob-grid/internal/pipeline"
	"github.com/couchcryptid/storm-prob-grid/internal/region"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testSinkTopic = "test-probability-grid"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkacontainer.WithClusterID("storm-prob-grid-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeInputs writes a 3x3 one-degree grid around Kansas and a square
// boundary covering its middle point.
func writeInputs(t *testing.T) (gridPath, boundaryPath string) {
	t.Helper()
	dir := t.TempDir()

	grid := map[string]any{
		"projection": domain.RAPParams,
		"lat":        [][]float64{{37, 37, 37}, {38, 38, 38}, {39, 39, 39}},
		"lon":        [][]float64{{-98, -97, -96}, {-98, -97, -96}, {-98, -97, -96}},
		"cape":       [][]float64{{0, 500, 0}, {500, 3000, 500}, {0, 500, 0}},
		"cin":        [][]float64{{-50, -20, -50}, {-20, 0, -20}, {-50, -20, -50}},
		"helicity":   [][]float64{{0, 100, 0}, {100, 350, 100}, {0, 100, 0}},
	}
	gridPath = filepath.Join(dir, "grid.json")
	writeJSON(t, gridPath, grid)

	boundary := `{"polygons": [[[[-97.5, 37.5], [-96.5, 37.5], [-96.5, 38.5], [-97.5, 38.5], [-97.5, 37.5]]]]}`
	boundaryPath = filepath.Join(dir, "boundary.json")
	require.NoError(t, os.WriteFile(boundaryPath, []byte(boundary), 0o600))
	return gridPath, boundaryPath
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// TestPipelineToKafka runs a full cycle from files to the file sink and the
// Kafka sink, then reads the published document back.
func TestPipelineToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	gridPath, boundaryPath := writeInputs(t)
	outPath := filepath.Join(t.TempDir(), "out", "prob.json")

	writer := kafka.NewWriter([]string{broker}, testSinkTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(pipeline.Stages{
		Grid:     file.NewGridReader(gridPath),
		Boundary: file.NewBoundaryReader(boundaryPath, file.Filter{}, discardLogger()),
		Sinks:    []pipeline.Sink{file.NewWriter(outPath, discardLogger()), writer},
	}, pipeline.Settings{
		Options: pipeline.DefaultOptions,
		Region:  region.DefaultOptions,
	}, discardLogger(), observability.NewMetricsForTesting())

	cycle := domain.NewCycle(time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC), 1)
	res, err := p.Run(ctx, cycle)
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.Emitted)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	assert.Equal(t, cycle.Key(), string(msg.Key))
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "F01", headers["forecast"])
	assert.Equal(t, "1", headers["cells"])
	assert.NotEmpty(t, headers["run_id"])

	var published domain.Forecast
	require.NoError(t, json.Unmarshal(msg.Value, &published))
	assert.Equal(t, "13:00-14:00 UTC", published.Valid)
	require.Len(t, published.Features, 1)
	assert.Greater(t, published.Features[0].Prob, 0.5)

	onDisk, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var written domain.Forecast
	require.NoError(t, json.Unmarshal(onDisk, &written))
	assert.Equal(t, published, written, "file and topic carry the same document")
}
