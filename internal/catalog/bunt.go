// Package catalog is the single durable store behind every entity in
// spec.md §3: patients, studies, series, instances, rules, exports,
// imports, VOIs, the two configuration singletons, the chain lock, the
// append-only transaction log and periodic statistics samples.
//
// It is a thin typed layer over tidwall/buntdb, following the teacher's
// dbdriver.BuntDriver (dbdriver/bunt.go): one embedded KV file, keys of the
// form "<collection>##<key>", JSON-encoded values, periodic fsync and
// auto-shrink left at the teacher's defaults.
package catalog

import (
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/draw-health/gateway/internal/cos"
)

const (
	autoShrinkSize = 1 << 20 // 1MiB, same threshold the teacher uses
	collectionSep  = "##"
)

// ErrNotFound is returned by Get, GetString and Delete when the
// collection/key pair has no row. Collections delete-all on DeleteCollection silently succeed when
// already empty, same as the teacher's driver.
type ErrNotFound struct {
	Collection, Key string
}

func (e *ErrNotFound) Error() string {
	return "catalog: not found: " + e.Collection + collectionSep + e.Key
}

type Store struct {
	db *buntdb.DB
}

func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    autoShrinkSize,
		AutoShrinkPercentage: 50,
	})
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func makeKey(collection, key string) string {
	if strings.HasSuffix(collection, collectionSep) {
		return collection + key
	}
	return collection + collectionSep + key
}

func bunt2common(err error, collection, key string) error {
	if err == buntdb.ErrNotFound {
		return &ErrNotFound{Collection: collection, Key: key}
	}
	return err
}

func (s *Store) Set(collection, key string, v interface{}) error {
	return s.SetString(collection, key, string(cos.MustMarshal(v)))
}

func (s *Store) Get(collection, key string, v interface{}) error {
	raw, err := s.GetString(collection, key)
	if err != nil {
		return err
	}
	return cos.Unmarshal([]byte(raw), v)
}

func (s *Store) SetString(collection, key, data string) error {
	full := makeKey(collection, key)
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(full, data, nil)
		return err
	})
}

func (s *Store) GetString(collection, key string) (string, error) {
	var val string
	full := makeKey(collection, key)
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		val, err = tx.Get(full)
		return err
	})
	return val, bunt2common(err, collection, key)
}

func (s *Store) Delete(collection, key string) error {
	full := makeKey(collection, key)
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(full)
		return err
	})
	return bunt2common(err, collection, key)
}

// List returns every stored value in a collection whose key matches
// pattern (buntdb glob syntax); an empty pattern lists everything.
func (s *Store) List(collection, pattern string) (values []string, err error) {
	if !strings.Contains(pattern, "*") && !strings.Contains(pattern, "?") {
		pattern += "*"
	}
	full := makeKey(collection, pattern)
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(full, func(_, value string) bool {
			values = append(values, value)
			return true
		})
	})
	return values, bunt2common(err, collection, "")
}

func (s *Store) DeleteCollection(collection string) error {
	keys, err := s.keys(collection)
	if err != nil || len(keys) == 0 {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (s *Store) keys(collection string) (keys []string, err error) {
	full := makeKey(collection, "*")
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(full, func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
	})
	return keys, bunt2common(err, collection, "")
}

// Update runs fn inside a single buntdb read-write transaction wrapper so
// callers can implement read-modify-write without a race (spec.md §5:
// "per-series updates use read-modify-write within a transaction").
func (s *Store) Update(fn func(tx *buntdb.Tx) error) error {
	return s.db.Update(fn)
}

func (s *Store) View(fn func(tx *buntdb.Tx) error) error {
	return s.db.View(fn)
}
