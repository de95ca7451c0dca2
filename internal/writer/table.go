package writer

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/gramseva/marketfeed/internal/buffer"
)

// table batches rows of one kind into a single insert statement.
type table[T any] struct {
	name   string
	insert string
	args   func(T) []any
	input  *buffer.Queue[T]

	mu      sync.Mutex
	metrics Metrics
}

func newTable[T any](name, insert string, bufferSize int, args func(T) []any) *table[T] {
	return &table[T]{
		name:   name,
		insert: insert,
		args:   args,
		input:  buffer.NewQueue[T](bufferSize),
	}
}

func (t *table[T]) push(row T) bool {
	return t.input.Push(row)
}

func (t *table[T]) pending() int {
	return t.input.Len()
}

// flush drains the queue in chunks of batchSize and inserts each chunk.
func (t *table[T]) flush(ctx context.Context, db BatchSender, batchSize int, rec Recorder) error {
	for {
		rows := t.input.Drain(batchSize)
		if len(rows) == 0 {
			return nil
		}

		conflicts, err := t.batchInsert(ctx, db, rows)
		rec.RecordFlush(t.name, len(rows)-conflicts, err)

		t.mu.Lock()
		if err != nil {
			t.metrics.Errors++
			t.metrics.Dropped += int64(len(rows))
		} else {
			t.metrics.Inserts += int64(len(rows) - conflicts)
			t.metrics.Conflicts += int64(conflicts)
			t.metrics.Flushes++
		}
		t.mu.Unlock()

		if err != nil {
			return err
		}
	}
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (t *table[T]) batchInsert(ctx context.Context, db BatchSender, rows []T) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(t.insert, t.args(r)...)
	}

	results := db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

func (t *table[T]) stats() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}
