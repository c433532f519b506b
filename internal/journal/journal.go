package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"tradecore/internal/og"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const (
	defaultQueueSize     = 8192
	defaultBatchSize     = 256
	defaultFlushInterval = 500 * time.Millisecond
	defaultWriteTimeout  = 5 * time.Second
)

// Sink stores batches of rows. rows is reused after Insert returns.
type Sink interface {
	Insert(ctx context.Context, rows []OrderRow) error
}

// GormSink writes rows with gorm.
type GormSink struct {
	db        *gorm.DB
	batchSize int
}

// NewGormSink migrates the order_updates table and returns a sink on db.
func NewGormSink(ctx context.Context, db *gorm.DB, batchSize int) (*GormSink, error) {
	if db == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "journal: gorm db")
	}
	if err := db.WithContext(ctx).AutoMigrate(&OrderRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate order_updates")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &GormSink{db: db, batchSize: batchSize}, nil
}

// Insert implements Sink.
func (s *GormSink) Insert(ctx context.Context, rows []OrderRow) error {
	return s.db.WithContext(ctx).CreateInBatches(rows, s.batchSize).Error
}

// Config controls batching. An empty RunID gets a fresh uuid.
type Config struct {
	RunID         string
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Journal is an order listener that queues every new lifecycle update and
// writes them in batches from its own goroutine. Update never blocks; when
// the queue is full the row is counted as dropped.
type Journal struct {
	cfg      Config
	sink     Sink
	registry *schema.Registry
	runID    string

	ch      chan OrderRow
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	// coordinator thread only
	journaled map[uint32]int
}

// New creates a journal for one run. Every row carries the run id.
func New(cfg Config, sink Sink, reg *schema.Registry) (*Journal, error) {
	if sink == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "journal: sink")
	}
	cfg = cfg.withDefaults()
	return &Journal{
		cfg:       cfg,
		sink:      sink,
		registry:  reg,
		runID:     cfg.RunID,
		ch:        make(chan OrderRow, cfg.QueueSize),
		journaled: make(map[uint32]int),
	}, nil
}

// RunID identifies this process's rows.
func (j *Journal) RunID() string { return j.runID }

// Written returns how many rows the sink accepted.
func (j *Journal) Written() uint64 { return j.written.Load() }

// Dropped returns how many rows never reached the queue.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Failed returns how many rows were lost to sink errors.
func (j *Journal) Failed() uint64 { return j.failed.Load() }

// Update implements dispatch.Listener[*og.Order]. Synthesized updates that
// were appended together with the published one are journaled as well.
func (j *Journal) Update(o *og.Order) {
	updates := o.Updates()
	from := j.journaled[o.ID]
	if from >= len(updates) {
		return
	}
	for _, u := range updates[from:] {
		j.enqueue(newOrderRow(j.runID, j.registry, o, u))
	}
	if o.IsDone() {
		delete(j.journaled, o.ID)
		return
	}
	j.journaled[o.ID] = len(updates)
}

func (j *Journal) enqueue(row OrderRow) {
	if j.closed.Load() {
		j.dropped.Add(1)
		return
	}
	select {
	case j.ch <- row:
	default:
		if j.dropped.Add(1) == 1 {
			logs.Warnf("journal: queue full, dropping rows")
		}
	}
}

// Start runs the batch loop until Close.
func (j *Journal) Start() error {
	if !j.started.CompareAndSwap(false, true) {
		return errors.New("journal: already started")
	}
	logs.Infof("journal: run %s started", j.runID)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.run()
	}()
	return nil
}

// Close stops accepting rows and flushes what is queued.
func (j *Journal) Close() {
	if j.closed.CompareAndSwap(false, true) {
		close(j.ch)
	}
	j.wg.Wait()
	logs.Infof("journal: run %s closed, written %d, dropped %d, failed %d",
		j.runID, j.Written(), j.Dropped(), j.Failed())
}

func (j *Journal) run() {
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]OrderRow, 0, j.cfg.BatchSize)
	for {
		select {
		case row, ok := <-j.ch:
			if !ok {
				j.flush(batch)
				return
			}
			batch = append(batch, row)
			if len(batch) >= j.cfg.BatchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			j.flush(batch)
			batch = batch[:0]
		}
	}
}

func (j *Journal) flush(batch []OrderRow) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.WriteTimeout)
	defer cancel()
	if err := j.sink.Insert(ctx, batch); err != nil {
		j.failed.Add(uint64(len(batch)))
		logs.Errorf("journal: insert %d rows, err: %+v", len(batch), err)
		return
	}
	j.written.Add(uint64(len(batch)))
}
