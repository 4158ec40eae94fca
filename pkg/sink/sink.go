// Package sink drains the ingest bus into the storage cluster. The
// consumer is a single goroutine running a bounded batch accumulator:
// rows pile up until the configured bulk size is reached or the bus
// has been idle for the flush interval, then the whole batch goes out
// as one bulk write.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/eden/pkg/blob"
	"github.com/tinyland-inc/eden/pkg/bus"
)

// WritePolicy decides what a failed bulk write does to the gateway.
type WritePolicy string

const (
	// WriteDrop logs the failure, drops the in-flight batch, and
	// keeps consuming. A transient storage failure costs one batch,
	// never the process.
	WriteDrop WritePolicy = "drop"
	// WriteExit propagates the failure out of Relay so the process
	// can terminate rather than silently lose data.
	WriteExit WritePolicy = "exit"
)

// Sink persists envelopes from the ingest bus. InitStatement is
// issued once before consumption starts; InsertStatement is the bulk
// write template.
type Sink interface {
	InitStatement() string
	InsertStatement() string
	Relay(ctx context.Context, in *bus.IngestBus, cluster Cluster) error
}

// Config for a SensorSink. Table names the target table; the two
// statement templates default to CrateDB statements derived from it.
type Config struct {
	Table           string
	CreateStatement string
	InsertStatement string
	BulkSize        int
	FlushInterval   time.Duration
	OnWriteError    WritePolicy
}

// SensorSink is the batch-accumulating persistence consumer.
type SensorSink struct {
	cfg    Config
	blobs  blob.Store
	logger zerolog.Logger
}

func NewSensorSink(cfg Config, blobs blob.Store, logger zerolog.Logger) *SensorSink {
	if cfg.Table == "" {
		cfg.Table = "sensors.readings"
	}
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.OnWriteError == "" {
		cfg.OnWriteError = WriteDrop
	}
	return &SensorSink{
		cfg:    cfg,
		blobs:  blobs,
		logger: logger.With().Str("component", "sink").Logger(),
	}
}

func (s *SensorSink) InitStatement() string {
	if s.cfg.CreateStatement != "" {
		return s.cfg.CreateStatement
	}
	return fmt.Sprintf("create table if not exists %s "+
		"(ts timestamp, sensor_values object, device_meta object, "+
		"month as date_trunc('month', ts)) partitioned by (month)", s.cfg.Table)
}

func (s *SensorSink) InsertStatement() string {
	if s.cfg.InsertStatement != "" {
		return s.cfg.InsertStatement
	}
	return fmt.Sprintf("insert into %s (ts, sensor_values, device_meta) values ($1, $2, $3)", s.cfg.Table)
}

// Relay runs the accumulator loop until ctx is canceled or the bus is
// closed and drained. It returns nil on orderly shutdown and an error
// only under the WriteExit policy.
func (s *SensorSink) Relay(ctx context.Context, in *bus.IngestBus, cluster Cluster) error {
	// The schema may already exist and older cluster versions reject
	// some create options, so init failure is not fatal.
	if err := cluster.Exec(ctx, s.InitStatement()); err != nil {
		s.logger.Warn().Err(err).Msg("schema init failed, assuming schema exists")
	}

	batch := make([]Row, 0, s.cfg.BulkSize)

	for {
		recvCtx, cancel := context.WithTimeout(ctx, s.cfg.FlushInterval)
		env, ok := in.Consume(recvCtx)
		cancel()

		if ok {
			batch = append(batch, NewRow(ctx, env, s.blobs, s.logger))
			if len(batch) >= s.cfg.BulkSize {
				if err := s.flush(ctx, cluster, &batch); err != nil {
					return err
				}
			}
			continue
		}

		if ctx.Err() != nil || in.Closed() {
			// Shutdown: persist what was already accumulated. The
			// parent context may already be canceled, so the final
			// flush gets its own deadline.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FlushInterval)
			err := s.flush(flushCtx, cluster, &batch)
			cancel()
			if err != nil {
				return err
			}
			s.logger.Info().Msg("sink stopped")
			return nil
		}

		// Idle timeout: flush the partial batch, if any.
		if len(batch) == 0 {
			s.logger.Debug().Msg("idle, nothing to flush")
			continue
		}
		if err := s.flush(ctx, cluster, &batch); err != nil {
			return err
		}
	}
}

// flush issues one bulk write for the accumulated rows and resets the
// batch. A zero-row flush never reaches the cluster.
func (s *SensorSink) flush(ctx context.Context, cluster Cluster, batch *[]Row) error {
	if len(*batch) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(*batch))
	for _, row := range *batch {
		params, err := row.Params()
		if err != nil {
			s.logger.Error().Err(err).Int64("ts", row.Timestamp).Msg("row dropped from batch")
			continue
		}
		rows = append(rows, params)
	}
	if len(rows) == 0 {
		*batch = (*batch)[:0]
		return nil
	}

	err := cluster.BulkInsert(ctx, s.InsertStatement(), rows)
	*batch = (*batch)[:0]
	if err != nil {
		if s.cfg.OnWriteError == WriteExit {
			return fmt.Errorf("bulk write failed: %w", err)
		}
		s.logger.Error().Err(err).Int("rows", len(rows)).Msg("bulk write failed, batch dropped")
		return nil
	}

	s.logger.Info().Int("rows", len(rows)).Msg("bulk insert done")
	return nil
}
