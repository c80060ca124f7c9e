// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package store is the live persistence gateway for surveys, votes,
// suggestions, the topic queue, destinations and admins.
//
// Everything lives in one BadgerDB instance. Values are JSON. Keys:
//
//	active                      -> active survey id (absent when none)
//	survey:<id%020d>            -> models.Survey
//	vote:<survey%020d>:<user>   -> models.Vote
//	suggestion:<id>             -> models.SuggestedTopic
//	queue:pos:<pos%020d>        -> models.QueuedTopic
//	queue:id:<id>               -> position
//	queue:tail                  -> last assigned position
//	dest:<tenant>               -> models.Destination
//	admin:<user>                -> models.Admin
//
// Multi-key mutations (create survey, promote, return, swap) run in a single
// read-write transaction and are retried on badger.ErrConflict.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/metrics"
)

var (
	// ErrNotFound is returned when a keyed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrActiveSurveyExists guards CreateSurvey against a second active survey.
	ErrActiveSurveyExists = errors.New("an active survey already exists")

	// ErrPendingSuggestion is returned when the suggester already has a
	// pending suggestion and the one-pending rule is on.
	ErrPendingSuggestion = errors.New("suggester already has a pending suggestion")

	// ErrNotAdjacent is returned by SwapQueued when other entries sit between
	// the two positions.
	ErrNotAdjacent = errors.New("queue positions are not adjacent")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

const (
	maxTxnRetries  = 64
	sequenceLease  = 16
	surveySeqKey   = "seq:survey"
	activeKey      = "active"
	surveyPrefix   = "survey:"
	votePrefix     = "vote:"
	suggestPrefix  = "suggestion:"
	queuePosPrefix = "queue:pos:"
	queueIDPrefix  = "queue:id:"
	queueTailKey   = "queue:tail"
	destPrefix     = "dest:"
	adminPrefix    = "admin:"
)

// Config configures Open.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// Store is the badger-backed gateway. All methods are safe for concurrent use.
type Store struct {
	db        *badger.DB
	surveySeq *badger.Sequence
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(surveySeqKey), sequenceLease)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("survey id sequence: %w", err)
	}

	logger.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Store opened")

	return &Store{
		db:        db,
		surveySeq: seq,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// OpenInMemory opens a throwaway in-memory store for tests and local runs.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true}, zerolog.Nop())
}

// Close releases the id sequence and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.surveySeq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close BadgerDB: %w", err))
	}
	return errors.Join(errs...)
}

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Ping reports whether the store is open and readable.
func (s *Store) Ping(ctx context.Context) error {
	return s.view(ctx, "ping", func(*badger.Txn) error { return nil })
}

// RunValueLogGC reclaims value log space. Returns nil when nothing was rewritten.
func (s *Store) RunValueLogGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return nil
	}
	return err
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(op, time.Since(start)) }()

	for attempt := 1; ; attempt++ {
		if err := s.checkOpen(ctx); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		metrics.StoreConflicts.WithLabelValues(op).Inc()
		if attempt >= maxTxnRetries {
			return fmt.Errorf("%s: %w after %d attempts", op, err, attempt)
		}
		s.logger.Debug().Str("op", op).Int("attempt", attempt).Msg("Transaction conflict, retrying")
	}
}

func (s *Store) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(op, time.Since(start)) }()

	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// scanJSON decodes every value under prefix, in key order, into a new T
// passed to fn. Iteration stops early when fn returns false.
func scanJSON[T any](txn *badger.Txn, prefix []byte, reverse bool, fn func(*T) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = append(append([]byte{}, prefix...), 0xFF)
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		v := new(T)
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		}); err != nil {
			return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		if !fn(v) {
			return nil
		}
	}
	return nil
}

func surveyKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", surveyPrefix, id))
}

func voteKey(surveyID int64, userID string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", votePrefix, surveyID, userID))
}

func votePrefixFor(surveyID int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", votePrefix, surveyID))
}

func suggestionKey(id string) []byte {
	return []byte(suggestPrefix + id)
}

func queuePosKey(pos int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", queuePosPrefix, pos))
}

func queueIDKey(id string) []byte {
	return []byte(queueIDPrefix + id)
}

func destKey(tenantID string) []byte {
	return []byte(destPrefix + tenantID)
}

func adminKey(userID string) []byte {
	return []byte(adminPrefix + userID)
}
