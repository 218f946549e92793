package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultBatchSize     = 1000
	defaultFlushInterval = 5 * time.Second
	defaultShutdownWait  = 10 * time.Second
	maxRetries           = 3
)

var errBufferClosed = errors.New("batch buffer is closed")

// LogRow is one row of the log_records table.
type LogRow struct {
	Collection string
	Seq        uint64
	Doc        string
}

// BatchBuffer manages batched writes to ClickHouse with automatic flushing
type BatchBuffer struct {
	conn driver.Conn

	mu     sync.Mutex
	rows   []LogRow
	closed bool

	batchSize     int
	flushInterval time.Duration
	shutdownWait  time.Duration

	flushTimer *time.Timer
	stopCh     chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewBatchBuffer creates a new batch buffer
func NewBatchBuffer(conn driver.Conn, logger *slog.Logger) *BatchBuffer {
	if logger == nil {
		logger = slog.Default()
	}

	b := &BatchBuffer{
		conn:          conn,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		shutdownWait:  defaultShutdownWait,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}

	b.flushTimer = time.NewTimer(b.flushInterval)

	b.wg.Add(1)
	go b.flushLoop()

	return b
}

// Add queues a row, flushing when the batch is full.
func (b *BatchBuffer) Add(row LogRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errBufferClosed
	}

	b.rows = append(b.rows, row)

	if len(b.rows) >= b.batchSize {
		return b.flushLocked()
	}

	return nil
}

// Flush writes any queued rows now.
func (b *BatchBuffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// flushLoop periodically flushes buffers on timer
func (b *BatchBuffer) flushLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.flushTimer.C:
			b.mu.Lock()
			_ = b.flushLocked()
			b.mu.Unlock()
			b.flushTimer.Reset(b.flushInterval)

		case <-b.stopCh:
			return
		}
	}
}

// flushLocked writes queued rows (must hold lock)
func (b *BatchBuffer) flushLocked() error {
	if len(b.rows) == 0 {
		return nil
	}

	start := time.Now()
	rows := b.rows
	b.rows = nil

	// Release lock during insert
	b.mu.Unlock()
	err := b.insertRows(rows)
	b.mu.Lock()

	if err != nil {
		b.logger.Error("failed to flush log records",
			"error", err,
			"row_count", len(rows),
		)
		return err
	}

	b.logger.Debug("flushed log records",
		"row_count", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Close stops the flush loop and writes whatever is still queued.
func (b *BatchBuffer) Close(ctx context.Context) error {
	var finalErr error

	b.closeOnce.Do(func() {
		close(b.stopCh)
		b.flushTimer.Stop()

		shutdownCtx, cancel := context.WithTimeout(ctx, b.shutdownWait)
		defer cancel()

		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-shutdownCtx.Done():
			b.logger.Warn("flush loop did not stop within timeout")
		}

		b.mu.Lock()
		defer b.mu.Unlock()

		b.closed = true
		finalErr = b.flushLocked()
	})

	return finalErr
}

func (b *BatchBuffer) insertRows(rows []LogRow) error {
	return b.retryInsert(func(ctx context.Context) error {
		batch, err := b.conn.PrepareBatch(ctx, "INSERT INTO log_records (collection, seq, doc)")
		if err != nil {
			return err
		}

		for _, row := range rows {
			if err := batch.Append(row.Collection, row.Seq, row.Doc); err != nil {
				return err
			}
		}

		return batch.Send()
	})
}

// retryInsert retries insert operation with exponential backoff
func (b *BatchBuffer) retryInsert(fn func(context.Context) error) error {
	var err error
	retryDelay := 100 * time.Millisecond

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = fn(ctx)
		cancel()

		if err == nil {
			return nil
		}

		if attempt < maxRetries {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	return fmt.Errorf("insert failed after %d attempts: %w", maxRetries, err)
}

// seqGenerator hands out snowflake-style identifiers: milliseconds since
// the Unix epoch in the high bits, a counter in the low 22. Values are
// strictly increasing within a process.
type seqGenerator struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

func (g *seqGenerator) next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now
	if g.now != nil {
		now = g.now
	}
	v := uint64(now().UnixMilli()) << 22
	if v <= g.last {
		v = g.last + 1
	}
	g.last = v
	return v
}
