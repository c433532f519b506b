package seqno

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/yanun0323/errors"
)

// PebbleStore keeps one high-water counter per trading day.
type PebbleStore struct {
	db   *pebble.DB
	sync bool
}

// OpenPebbleStore opens (or creates) a store at path. opts may be nil.
func OpenPebbleStore(path string, opts *pebble.Options, sync bool) (*PebbleStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errors.Wrap(err, "open pebble").With("path", path)
	}
	return &PebbleStore{db: db, sync: sync}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: hw:<YYYYMMDD>
func kHighWater(day string) []byte { return append([]byte("hw:"), day...) }

// Load returns the counter stored for day.
func (s *PebbleStore) Load(day string) (uint32, bool, error) {
	val, closer, err := s.db.Get(kHighWater(day))
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer closer.Close()
	if len(val) != 4 {
		return 0, false, errors.Errorf("high-water value has %d bytes", len(val))
	}
	return binary.LittleEndian.Uint32(val), true, nil
}

// Save records counter as the high-water mark of day.
func (s *PebbleStore) Save(day string, counter uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], counter)
	opt := pebble.NoSync
	if s.sync {
		opt = pebble.Sync
	}
	return s.db.Set(kHighWater(day), buf[:], opt)
}
