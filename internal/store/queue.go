// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/galdcup/internal/models"
)

// Enqueue appends q at the queue tail and assigns its position.
func (s *Store) Enqueue(ctx context.Context, q *models.QueuedTopic) error {
	if q.ID == "" {
		q.ID = models.NewTopicID()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	return s.update(ctx, "enqueue", func(txn *badger.Txn) error {
		return appendQueued(txn, q)
	})
}

// ListQueue returns the queue in position order.
func (s *Store) ListQueue(ctx context.Context) ([]*models.QueuedTopic, error) {
	var out []*models.QueuedTopic
	err := s.view(ctx, "list_queue", func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(queuePosPrefix), false, func(q *models.QueuedTopic) bool {
			out = append(out, q)
			return true
		})
	})
	return out, err
}

// QueueLength returns the number of queued topics.
func (s *Store) QueueLength(ctx context.Context) (int, error) {
	n := 0
	err := s.view(ctx, "queue_length", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(queueIDPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// GetQueued returns a queued topic by id.
func (s *Store) GetQueued(ctx context.Context, id string) (*models.QueuedTopic, error) {
	q := &models.QueuedTopic{}
	err := s.view(ctx, "get_queued", func(txn *badger.Txn) error {
		pos, err := queuedPosition(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, queuePosKey(pos), q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQueued replaces the topic of a queued entry, keeping its position.
func (s *Store) UpdateQueued(ctx context.Context, id string, topic models.Topic) (*models.QueuedTopic, error) {
	q := &models.QueuedTopic{}
	err := s.update(ctx, "update_queued", func(txn *badger.Txn) error {
		pos, err := queuedPosition(txn, id)
		if err != nil {
			return err
		}
		if err := getJSON(txn, queuePosKey(pos), q); err != nil {
			return err
		}
		q.Topic = topic
		return setJSON(txn, queuePosKey(pos), q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// DeleteQueued removes a queued topic.
func (s *Store) DeleteQueued(ctx context.Context, id string) (*models.QueuedTopic, error) {
	var q *models.QueuedTopic
	err := s.update(ctx, "delete_queued", func(txn *badger.Txn) error {
		var err error
		q, err = removeQueued(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Dequeue removes and returns the lowest-position entry, or ErrNotFound
// when the queue is empty.
func (s *Store) Dequeue(ctx context.Context) (*models.QueuedTopic, error) {
	var head *models.QueuedTopic
	err := s.update(ctx, "dequeue", func(txn *badger.Txn) error {
		head = nil
		if err := scanJSON(txn, []byte(queuePosPrefix), false, func(q *models.QueuedTopic) bool {
			head = q
			return false
		}); err != nil {
			return err
		}
		if head == nil {
			return ErrNotFound
		}
		if err := txn.Delete(queuePosKey(head.Position)); err != nil {
			return err
		}
		return txn.Delete(queueIDKey(head.ID))
	})
	if err != nil {
		return nil, err
	}
	return head, nil
}

// SwapQueued exchanges the entries at positions a and b in one transaction.
// With requireAdjacent set, no other entry may sit between them.
func (s *Store) SwapQueued(ctx context.Context, a, b int64, requireAdjacent bool) error {
	if a == b {
		return nil
	}
	if a > b {
		a, b = b, a
	}
	return s.update(ctx, "swap_queued", func(txn *badger.Txn) error {
		first := &models.QueuedTopic{}
		if err := getJSON(txn, queuePosKey(a), first); err != nil {
			return err
		}
		second := &models.QueuedTopic{}
		if err := getJSON(txn, queuePosKey(b), second); err != nil {
			return err
		}

		if requireAdjacent {
			between := false
			err := scanJSON(txn, []byte(queuePosPrefix), false, func(q *models.QueuedTopic) bool {
				if q.Position > a && q.Position < b {
					between = true
				}
				return !between && q.Position < b
			})
			if err != nil {
				return err
			}
			if between {
				return ErrNotAdjacent
			}
		}

		first.Position, second.Position = b, a
		if err := setJSON(txn, queuePosKey(a), second); err != nil {
			return err
		}
		if err := setJSON(txn, queuePosKey(b), first); err != nil {
			return err
		}
		if err := txn.Set(queueIDKey(second.ID), []byte(strconv.FormatInt(a, 10))); err != nil {
			return err
		}
		return txn.Set(queueIDKey(first.ID), []byte(strconv.FormatInt(b, 10)))
	})
}

// NeighborPosition returns the position just before (dir<0) or after
// (dir>0) the entry with the given id, or ErrNotFound at either end.
func (s *Store) NeighborPosition(ctx context.Context, id string, dir int) (self, neighbor int64, err error) {
	err = s.view(ctx, "neighbor_position", func(txn *badger.Txn) error {
		pos, err := queuedPosition(txn, id)
		if err != nil {
			return err
		}
		self = pos

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(queuePosPrefix)
		opts.PrefetchValues = false
		opts.Reverse = dir < 0
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(queuePosKey(pos)); it.ValidForPrefix(opts.Prefix); it.Next() {
			p, perr := strconv.ParseInt(string(it.Item().Key()[len(queuePosPrefix):]), 10, 64)
			if perr != nil {
				return perr
			}
			if p != pos {
				neighbor = p
				return nil
			}
		}
		return ErrNotFound
	})
	return self, neighbor, err
}

// appendQueued assigns q the position after the current tail and writes it.
// Every append reads and rewrites queueTailKey, so two appends racing for
// the same position conflict at commit instead of overwriting each other.
func appendQueued(txn *badger.Txn, q *models.QueuedTopic) error {
	tail, err := readTail(txn)
	if err != nil {
		return err
	}
	if err := scanJSON(txn, []byte(queuePosPrefix), true, func(last *models.QueuedTopic) bool {
		if last.Position > tail {
			tail = last.Position
		}
		return false
	}); err != nil {
		return err
	}
	q.Position = tail + 1
	if err := txn.Set([]byte(queueTailKey), []byte(strconv.FormatInt(q.Position, 10))); err != nil {
		return err
	}
	if err := setJSON(txn, queuePosKey(q.Position), q); err != nil {
		return err
	}
	return txn.Set(queueIDKey(q.ID), []byte(strconv.FormatInt(q.Position, 10)))
}

func readTail(txn *badger.Txn) (int64, error) {
	item, err := txn.Get([]byte(queueTailKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var tail int64
	err = item.Value(func(val []byte) error {
		var perr error
		tail, perr = strconv.ParseInt(string(val), 10, 64)
		return perr
	})
	return tail, err
}

func removeQueued(txn *badger.Txn, id string) (*models.QueuedTopic, error) {
	pos, err := queuedPosition(txn, id)
	if err != nil {
		return nil, err
	}
	q := &models.QueuedTopic{}
	if err := getJSON(txn, queuePosKey(pos), q); err != nil {
		return nil, err
	}
	if err := txn.Delete(queuePosKey(pos)); err != nil {
		return nil, err
	}
	if err := txn.Delete(queueIDKey(id)); err != nil {
		return nil, err
	}
	return q, nil
}

func queuedPosition(txn *badger.Txn, id string) (int64, error) {
	item, err := txn.Get(queueIDKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	var pos int64
	err = item.Value(func(val []byte) error {
		var perr error
		pos, perr = strconv.ParseInt(string(val), 10, 64)
		return perr
	})
	return pos, err
}
