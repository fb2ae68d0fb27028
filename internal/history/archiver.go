package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetcost/rightsize/internal/pipeline"
)

// RunArchiver is the interface used by Archiver to persist runs. It
// exists to allow testing without a real database.
type RunArchiver interface {
	ArchiveRuns(ctx context.Context, runs []*pipeline.Result) error
}

// Archiver buffers completed runs in memory and periodically flushes
// them to the store in batches, so the API path never waits on the
// database. It is safe for concurrent use.
type Archiver struct {
	store         RunArchiver
	buffer        []*pipeline.Result
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
}

// NewArchiver creates an Archiver that flushes to the given store when
// the buffer reaches batchSize or every flushInterval, whichever comes
// first.
func NewArchiver(store RunArchiver, batchSize int, flushInterval time.Duration) *Archiver {
	return &Archiver{
		store:         store,
		buffer:        make([]*pipeline.Result, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// Start begins a background goroutine that flushes buffered runs on a
// timer. It blocks until Stop is called or the context is cancelled.
func (a *Archiver) Start(ctx context.Context) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-ctx.Done():
			a.flush()
			return
		case <-a.done:
			a.flush()
			return
		}
	}
}

// Record adds a completed run to the buffer. If the buffer reaches
// batchSize, a flush is triggered immediately.
func (a *Archiver) Record(run *pipeline.Result) {
	a.mu.Lock()
	a.buffer = append(a.buffer, run)
	shouldFlush := len(a.buffer) >= a.batchSize
	a.mu.Unlock()

	if shouldFlush {
		a.flush()
	}
}

// flush drains all buffered runs and writes them to the store. It logs
// errors rather than returning them so callers are not blocked.
func (a *Archiver) flush() {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.buffer
	a.buffer = make([]*pipeline.Result, 0, a.batchSize)
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.store.ArchiveRuns(ctx, batch); err != nil {
		slog.Error("failed to archive runs", "count", len(batch), "error", err)
	}
}

// Stop signals the background goroutine to exit and performs a final
// flush.
func (a *Archiver) Stop() {
	close(a.done)
}
