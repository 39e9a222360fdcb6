package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"scalper_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	defaultQueue    = 1024
	defaultBatch    = 64
	flushInterval   = time.Second
	defaultPageSize = 100
)

// Journal is the SQLite execution journal. Record never blocks: entries are
// queued and written in batches by a background goroutine.
type Journal struct {
	db      *gorm.DB
	queue   chan domain.JournalEntry
	flushes chan chan struct{}
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex // guards closed
	closed  bool
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewJournal opens (or creates) the database at path and starts the writer.
func NewJournal(path string) (*Journal, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: a second one would see a different in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.JournalEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	j := &Journal{
		db:      db,
		queue:   make(chan domain.JournalEntry, defaultQueue),
		flushes: make(chan chan struct{}),
		done:    make(chan struct{}),
		logger:  slog.Default().With("module", "journal"),
	}
	go j.writeLoop()
	return j, nil
}

// Record queues an entry. A full queue drops it, as does a closed journal.
func (j *Journal) Record(e domain.JournalEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		if j.dropped.Add(1)%100 == 1 {
			j.logger.Warn("Journal queue full, dropping entries", "dropped", j.dropped.Load())
		}
	}
}

// Dropped returns how many entries were lost to a full queue.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Flush blocks until every entry recorded before the call is written.
func (j *Journal) Flush() {
	ack := make(chan struct{})
	select {
	case j.flushes <- ack:
		<-ack
	case <-j.done:
	}
}

// Close flushes the queue and closes the database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.queue)
		j.mu.Unlock()
		<-j.done
		sqlDB, dbErr := j.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}

func (j *Journal) writeLoop() {
	defer close(j.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]domain.JournalEntry, 0, defaultBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.db.CreateInBatches(batch, defaultBatch).Error; err != nil {
			j.logger.Error("Failed to write journal batch", slog.Int("entries", len(batch)), slog.Any("error", err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-j.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= defaultBatch {
				flush()
			}
		case ack := <-j.flushes:
			j.drainInto(&batch)
			flush()
			close(ack)
		case <-ticker.C:
			flush()
		}
	}
}

func (j *Journal) drainInto(batch *[]domain.JournalEntry) {
	for {
		select {
		case e, ok := <-j.queue:
			if !ok {
				return
			}
			*batch = append(*batch, e)
		default:
			return
		}
	}
}

// ======================================================================================
// Queries
// ======================================================================================

// Recent returns up to limit entries, newest first. An empty kind matches all kinds.
func (j *Journal) Recent(kind string, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	q := j.db.Order("id DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var entries []domain.JournalEntry
	err := q.Find(&entries).Error
	return entries, err
}

// ByClientID returns every entry of one client order id, oldest first.
func (j *Journal) ByClientID(clientID string) ([]domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	err := j.db.Where("client_order_id = ?", clientID).Order("id ASC").Find(&entries).Error
	return entries, err
}
