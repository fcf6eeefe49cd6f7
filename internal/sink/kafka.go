package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"

	"github.com/sells-group/geocover/internal/config"
	"github.com/sells-group/geocover/internal/model"
)

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds a writer balancing by key so every update of a
// station lands on the same partition.
func NewKafkaWriter(cfg config.KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, eris.New("kafka: brokers and topic are required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              batch,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}, nil
}

// PointEvent is the message value published per station.
type PointEvent struct {
	RunID     string    `json:"run_id"`
	Table     string    `json:"table"`
	StartedAt time.Time `json:"started_at"`
	model.PointRecord
}

// Kafka publishes one message per point keyed by "lat,lon".
type Kafka struct {
	w     MessageWriter
	chunk int
}

// NewKafka creates a Kafka sink.
func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{w: w, chunk: 1000}
}

// Name implements Sink.
func (k *Kafka) Name() string { return "kafka" }

// Write implements Sink.
func (k *Kafka) Write(ctx context.Context, run Run, points []model.PointRecord) error {
	table := run.TableName()
	msgs := make([]kafka.Message, 0, min(len(points), k.chunk))
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := k.w.WriteMessages(ctx, msgs...); err != nil {
			return eris.Wrapf(err, "kafka: publish %d messages", len(msgs))
		}
		msgs = make([]kafka.Message, 0, k.chunk)
		return nil
	}

	for _, p := range points {
		value, err := json.Marshal(PointEvent{RunID: run.ID, Table: table, StartedAt: run.StartedAt, PointRecord: p})
		if err != nil {
			return eris.Wrapf(err, "kafka: encode %s", p.Key())
		}
		msgs = append(msgs, kafka.Message{Key: []byte(p.Key().String()), Value: value})
		if len(msgs) == k.chunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
