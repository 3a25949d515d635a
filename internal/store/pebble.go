package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleDB is the on-disk store backend.
type PebbleDB struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the state store at path.
func OpenPebble(path string) (*PebbleDB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	return &PebbleDB{db: db}, nil
}

func (p *PebbleDB) Read(ctx context.Context, key []byte) ([]byte, error) {
	if p.db == nil {
		return nil, ErrClosed
	}

	val, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// Copy the value out
	valCopy := make([]byte, len(val))
	copy(valCopy, val)
	return valCopy, nil
}

func (p *PebbleDB) Write(ctx context.Context, key, value []byte) error {
	if p.db == nil {
		return ErrClosed
	}
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleDB) Delete(ctx context.Context, key []byte) error {
	if p.db == nil {
		return ErrClosed
	}
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleDB) Batch(ctx context.Context, ops []BatchOperation) error {
	if p.db == nil {
		return ErrClosed
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		switch op.Type {
		case BatchPut:
			if err := batch.Set(op.Key, op.Value, nil); err != nil {
				return err
			}
		case BatchDelete:
			if err := batch.Delete(op.Key, nil); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown batch operation type: %d", op.Type)
		}
	}

	return batch.Commit(pebble.Sync)
}

func (p *PebbleDB) Iterator(ctx context.Context, start, end []byte) (Iterator, error) {
	if p.db == nil {
		return nil, ErrClosed
	}

	iter, _ := p.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})

	return &pebbleIterator{
		iter:  iter,
		start: start,
		end:   end,
	}, nil
}

func (p *PebbleDB) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

type pebbleIterator struct {
	iter *pebble.Iterator

	start, end []byte
	err        error
	current    struct {
		key, value []byte
	}
}

func (it *pebbleIterator) Next() bool {
	if it.current.key == nil {
		if it.start == nil {
			it.iter.First()
		} else {
			it.iter.SeekGE(it.start)
		}
	} else {
		it.iter.Next()
	}

	if !it.iter.Valid() {
		return false
	}

	key := it.iter.Key()
	if it.end != nil && bytes.Compare(key, it.end) >= 0 {
		return false
	}

	val := it.iter.Value()
	valCopy := make([]byte, len(val))
	copy(valCopy, val)

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	it.current.key = keyCopy
	it.current.value = valCopy
	return true
}

func (it *pebbleIterator) Key() []byte {
	return it.current.key
}

func (it *pebbleIterator) Value() []byte {
	return it.current.value
}

func (it *pebbleIterator) Error() error {
	if it.iter.Error() != nil {
		return it.iter.Error()
	}
	return it.err
}

func (it *pebbleIterator) Close() error {
	it.iter.Close()
	return nil
}
