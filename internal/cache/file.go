package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// File keeps one JSON document per key under dir.
type File struct {
	dir string
	now func() time.Time
}

type fileEntry struct {
	Expires time.Time       `json:"expires"`
	Value   json.RawMessage `json:"value"`
}

func NewFile(dir string) *File {
	return &File{dir: dir, now: time.Now}
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is a miss; the next Set rewrites it.
		return nil, false, nil
	}
	if !e.Expires.IsZero() && f.now().After(e.Expires) {
		_ = os.Remove(f.path(key))
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Set writes the entry through a temp file so readers never see a partial
// document. Values must be valid JSON.
func (f *File) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	e := fileEntry{Value: value}
	if ttl > 0 {
		e.Expires = f.now().Add(ttl)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

// Purge removes expired entries and leftovers of interrupted writes.
func (f *File) Purge(_ context.Context) (int64, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var removed int64
	now := f.now()
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(f.dir, de.Name())
		switch filepath.Ext(de.Name()) {
		case ".tmp":
		case ".json":
			data, err := os.ReadFile(path)
			if err != nil {
				return removed, err
			}
			var e fileEntry
			if json.Unmarshal(data, &e) == nil && (e.Expires.IsZero() || !now.After(e.Expires)) {
				continue
			}
		default:
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (f *File) Close() error { return nil }
