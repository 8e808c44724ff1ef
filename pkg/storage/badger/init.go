package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection = errors.New("badger database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
)

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

type entry struct {
	key []byte
	val []byte
}

func (d *Database) setBatch(entries []entry) error {
	wb := d.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range entries {
		if err := wb.Set(e.key, e.val); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

// scan visits values under prefix whose timestamp lies in [start, end].
// Zero bounds are open. Keys are ordered by timestamp so the walk stops at end.
// scan visits values under prefix with timestamps in [start, end], either
// bound may be zero. It stops early when ctx is done.
func (d *Database) scan(ctx context.Context, prefix []byte, start, end time.Time, fn func(val []byte) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seek := prefix
		if !start.IsZero() {
			seek = append(append([]byte{}, prefix...), encodeTime(start)...)
		}
		var stop []byte
		if !end.IsZero() {
			stop = append(append([]byte{}, prefix...), encodeTime(end)...)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if stop != nil && compareTS(item.Key(), stop, len(prefix)) > 0 {
				break
			}
			if err := item.Value(fn); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return nil
}

// key lays out prefix | timestamp | seq | identity. Timestamp and seq are big
// endian so iteration order is chronological; identity holds the remaining
// composite key columns separated by NUL.
func key(prefix []byte, ts time.Time, seq uint64, identity ...string) []byte {
	k := make([]byte, 0, len(prefix)+16+32)
	k = append(k, prefix...)
	k = append(k, encodeTime(ts)...)
	k = binary.BigEndian.AppendUint64(k, seq)
	for _, id := range identity {
		k = append(k, 0)
		k = append(k, id...)
	}

	return k
}

func encodeTime(t time.Time) []byte {
	// Flipping the sign bit keeps pre-1970 timestamps ordered before later ones.
	return binary.BigEndian.AppendUint64(nil, uint64(t.UnixNano())^(1<<63))
}

func compareTS(k, stop []byte, offset int) int {
	a := binary.BigEndian.Uint64(k[offset : offset+8])
	b := binary.BigEndian.Uint64(stop[offset : offset+8])
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
