package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/nulzo/model-helpers/internal/store"
	"github.com/nulzo/model-helpers/internal/store/model"
	"go.uber.org/zap"
)

// Ingestor handles the asynchronous persistence of completion logs.
type Ingestor interface {
	Log(log *model.CompletionLog)
	Start(ctx context.Context)
	// Stop flushes buffered logs and waits for the worker to exit.
	Stop()
}

type IngestorOption func(*ingestor)

func WithBatchSize(n int) IngestorOption {
	return func(i *ingestor) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) IngestorOption {
	return func(i *ingestor) {
		if d > 0 {
			i.flushTime = d
		}
	}
}

func WithBufferSize(n int) IngestorOption {
	return func(i *ingestor) {
		if n > 0 {
			i.logChan = make(chan *model.CompletionLog, n)
		}
	}
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	logChan   chan *model.CompletionLog
	batchSize int
	flushTime time.Duration

	mu      sync.RWMutex
	started bool
	stopped bool
	done    chan struct{}
}

func NewIngestor(logger *zap.Logger, repo store.Repository, opts ...IngestorOption) Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &ingestor{
		logger:    logger,
		repo:      repo,
		logChan:   make(chan *model.CompletionLog, 10000),
		batchSize: 50,
		flushTime: 5 * time.Second,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *ingestor) Log(log *model.CompletionLog) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.stopped {
		i.logger.Warn("Analytics ingestor stopped, dropping log", zap.String("completion_id", log.ID))
		return
	}

	select {
	case i.logChan <- log:
	default:
		i.logger.Warn("Analytics buffer full, dropping log", zap.String("completion_id", log.ID))
	}
}

// Start launches the worker. Only the first call before Stop has any effect.
func (i *ingestor) Start(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started || i.stopped {
		return
	}
	i.started = true
	go i.worker(ctx)
}

func (i *ingestor) Stop() {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return
	}
	i.stopped = true
	close(i.logChan)
	started := i.started
	i.mu.Unlock()

	if started {
		<-i.done
	}
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.done)

	batch := make([]*model.CompletionLog, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		// the request context may already be gone
		err := i.repo.WithTx(context.Background(), func(tx store.Repository) error {
			for _, log := range batch {
				if err := tx.Completions().Log(context.Background(), log); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			i.logger.Error("Failed to persist completion logs", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case log, ok := <-i.logChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, log)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// drain what is already buffered
			for {
				select {
				case log, ok := <-i.logChan:
					if !ok {
						flush()
						return
					}
					batch = append(batch, log)
				default:
					flush()
					return
				}
			}
		}
	}
}
