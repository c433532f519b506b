package state

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
)

// Snapshot captures positions at a point in time.
type Snapshot struct {
	Timestamp schema.Timeval  `json:"timestamp"`
	LastFill  schema.Timeval  `json:"lastFill"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	Symbol schema.SymbolID `json:"symbol"`
	Name   string          `json:"name,omitempty"`
	Qty    schema.Quantity `json:"qty"`
	Bought schema.Quantity `json:"bought"`
	Sold   schema.Quantity `json:"sold"`
	Cash   int64           `json:"cash"`
}

// Snapshot builds a snapshot stamped at now. reg may be nil; it only adds
// symbol names.
func (r *PositionReducer) Snapshot(now schema.Timeval, reg *schema.Registry) Snapshot {
	entries := make([]PositionEntry, 0, len(r.positions))
	for id, p := range r.positions {
		e := PositionEntry{Symbol: id, Qty: p.Qty, Bought: p.Bought, Sold: p.Sold, Cash: p.Cash}
		if reg != nil {
			e.Name = reg.SymbolName(id)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return Snapshot{Timestamp: now, LastFill: r.lastAt, Positions: entries}
}

// WriteSnapshot writes a snapshot to disk as JSON, replacing the file
// atomically.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir")
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read snapshot")
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	return snap, nil
}
