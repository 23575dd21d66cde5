//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-fusion-service/internal/config"
	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	"github.com/couchcryptid/hazard-fusion-service/internal/escalation"
	"github.com/couchcryptid/hazard-fusion-service/internal/fusion"
	"github.com/couchcryptid/hazard-fusion-service/internal/observability"
	"github.com/couchcryptid/hazard-fusion-service/internal/pipeline"
	"github.com/couchcryptid/hazard-fusion-service/internal/verification"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	postsTopic     = "test-raw-social-posts"
	signalsTopic   = "test-hazard-signals"
	reportsTopic   = "test-raw-hazard-reports"
	decisionsTopic = "test-verification-decisions"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("hazard-fusion-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	brokers, err := c.Brokers(ctx)
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
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func publish(ctx context.Context, t *testing.T, broker, topic string, values map[string]any) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: topic}
	defer producer.Close()

	msgs := make([]kafkago.Message, 0, len(values))
	for key, v := range values {
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(key), Value: payload})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

type received struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// consume reads n messages from the start of topic and returns the latest
// message per key.
func consume(ctx context.Context, t *testing.T, broker, topic string, n int) map[string]received {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	defer consumer.Close()

	readCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	out := make(map[string]received, n)
	for i := 0; i < n; i++ {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from %s", topic)
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		out[string(msg.Key)] = received{Key: string(msg.Key), Value: msg.Value, Headers: headers}
	}
	return out
}

func ptr(v float64) *float64 { return &v }

// TestKafkaReaderWriter verifies that kafka.Reader and kafka.Writer round-trip
// a message with its headers.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, postsTopic)
	createTopic(t, broker, signalsTopic)

	cfg := testConfig(broker, "test-reader")

	writer := kafka.NewWriter(cfg, postsTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{{
		Key:     []byte("post-1"),
		Value:   []byte(`{"id":"post-1"}`),
		Headers: map[string]string{"hazard_category": "flood"},
	}}))

	reader := kafka.NewReader(cfg, postsTopic, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	batch, err := reader.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "post-1", string(batch[0].Key))
	assert.Equal(t, "flood", batch[0].Headers["hazard_category"])
	assert.Equal(t, postsTopic, batch[0].Topic)
	require.NoError(t, batch[0].Commit(ctx))
}

// TestPipelinesEndToEnd runs the posts and reports pipelines against real Kafka:
// a credible post becomes a signal, a strong report verifies at tier 1 and a
// weak one escalates and is then resolved by an analyst.
func TestPipelinesEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	for _, topic := range []string{postsTopic, signalsTopic, reportsTopic, decisionsTopic} {
		createTopic(t, broker, topic)
	}

	now := time.Now().UTC()
	publish(ctx, t, broker, postsTopic, map[string]any{
		"post-a": domain.RawPost{
			ID:        "post-a",
			Text:      "Severe flooding happening right now in Mumbai Marine Drive, water rising rapidly",
			CreatedAt: now.Add(-5 * time.Minute),
			Author:    domain.RawAuthor{ID: "u-1", Handle: "coastwatch", Verified: true, FollowerCount: 50000},
			Location:  &domain.RawPostLocation{Lat: ptr(18.944), Lon: ptr(72.823)},
			Platform:  "twitter",
		},
		"post-b": domain.RawPost{
			ID:        "post-b",
			Text:      "lovely sunny afternoon, having lunch with friends",
			CreatedAt: now.Add(-5 * time.Minute),
			Author:    domain.RawAuthor{ID: "u-2", Handle: "someone"},
			Platform:  "twitter",
		},
	})
	publish(ctx, t, broker, reportsTopic, map[string]any{
		"rep-strong": domain.RawReport{
			ID:             "rep-strong",
			AuthorID:       "u-3",
			HazardType:     "tsunami",
			Severity:       "critical",
			Description:    "tsunami emergency evacuation",
			Location:       &domain.Location{Lat: 13.0827, Lon: 80.2707},
			CreatedAt:      now.Add(-10 * time.Minute),
			HasMedia:       true,
			UserReputation: ptr(0.8),
		},
		"rep-weak": domain.RawReport{
			ID:             "rep-weak",
			AuthorID:       "u-4",
			HazardType:     "high_wave",
			Severity:       "high",
			Description:    "big waves near the harbour",
			Location:       &domain.Location{Lat: 9.9312, Lon: 76.2673},
			CreatedAt:      now.Add(-30 * time.Minute),
			UserReputation: ptr(0.2),
		},
	})

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewRealClock()
	store := fusion.NewStore(fusion.NewMemoryBackend(), clock)
	queue := escalation.New(clock)
	engine := verification.NewEngine(store,
		verification.NewScorer(store, nil, clock),
		verification.NewValidator(verification.NewFusionSocialProvider(store), nil, time.Second, logger, metrics),
		queue, clock, logger, metrics)

	postsReader := kafka.NewReader(testConfig(broker, "posts"), postsTopic, logger)
	signalsWriter := kafka.NewWriter(testConfig(broker, "posts"), signalsTopic, logger)
	reportsReader := kafka.NewReader(testConfig(broker, "reports"), reportsTopic, logger)
	decisionsWriter := kafka.NewWriter(testConfig(broker, "reports"), decisionsTopic, logger)
	t.Cleanup(func() {
		_ = postsReader.Close()
		_ = signalsWriter.Close()
		_ = reportsReader.Close()
		_ = decisionsWriter.Close()
	})

	posts := pipeline.New("posts", postsReader, pipeline.NewPostProcessor(store, logger, metrics), signalsWriter, logger, metrics, 10, 2)
	reports := pipeline.New("reports", reportsReader, pipeline.NewReportProcessor(engine, nil, logger), decisionsWriter, logger, metrics, 10, 2)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = posts.Run(runCtx) }()
	go func() { _ = reports.Run(runCtx) }()

	signals := consume(ctx, t, broker, signalsTopic, 1)
	sig, ok := signals["post-a"]
	require.True(t, ok, "only the credible post is admitted")
	assert.Equal(t, "flood", sig.Headers["hazard_category"])
	assert.Equal(t, "high", sig.Headers["urgency"])
	assert.Equal(t, "true", sig.Headers["credible"])

	decisions := consume(ctx, t, broker, decisionsTopic, 2)

	var strong domain.VerificationDecision
	require.NoError(t, json.Unmarshal(decisions["rep-strong"].Value, &strong))
	assert.Equal(t, domain.StatusVerified, strong.Status)
	assert.Equal(t, domain.TierAutomated, strong.Tier)
	assert.Equal(t, "verified", decisions["rep-strong"].Headers["status"])

	var weak domain.VerificationDecision
	require.NoError(t, json.Unmarshal(decisions["rep-weak"].Value, &weak))
	assert.Equal(t, domain.StatusPending, weak.Status)
	assert.Equal(t, domain.TierHuman, weak.Tier)
	assert.Equal(t, 1, queue.Len())

	resolved, err := engine.Resolve(ctx, "rep-weak", "analyst-1", domain.StatusFalse, "no swell recorded")
	require.NoError(t, err)
	require.NoError(t, pipeline.NewDecisionPublisher(decisionsWriter).Publish(ctx, resolved))
	assert.Zero(t, queue.Len())

	final := consume(ctx, t, broker, decisionsTopic, 3)
	var last domain.VerificationDecision
	require.NoError(t, json.Unmarshal(final["rep-weak"].Value, &last))
	assert.Equal(t, domain.StatusFalse, last.Status)
	assert.Equal(t, "analyst-1", last.AnalystID)
}
