// Package badger stores feedback in an embedded BadgerDB keyed by timestamp.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/sweetpotato0/adaptive-rag/feedback"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
)

const (
	entryPrefix = "feedback:"
	sequenceKey = "feedbackseq"
)

// Store is an append-only feedback sink.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ feedback.Sink = (*Store)(nil)

type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the database at dir. With inMemory set dir is ignored.
func Open(dir string, inMemory bool) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &loggerAdapter{logger: logging.WithComponent("feedback_badger")}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open feedback store: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open feedback sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// makeKey orders entries by timestamp, then by insertion.
func makeKey(unixNano int64, seq uint64) []byte {
	buf := make([]byte, len(entryPrefix)+16)
	offset := copy(buf, entryPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(unixNano))
	binary.BigEndian.PutUint64(buf[offset+8:], seq)
	return buf
}

// Write implements feedback.Sink.
func (s *Store) Write(ctx context.Context, entry feedback.Entry) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next feedback id: %w", err)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(entry.Timestamp.UnixNano(), n), raw)
	})
}

// List returns every entry in timestamp order.
func (s *Store) List(ctx context.Context) ([]feedback.Entry, error) {
	var out []feedback.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var e feedback.Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				out = append(out, e)
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode feedback: %w", err)
			}
		}
		return nil
	})
	return out, err
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
