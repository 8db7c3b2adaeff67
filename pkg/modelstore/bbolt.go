// Package modelstore implements orchestrator.ModelSink as a single-file
// key/value store, adapted from the teacher's bbolt-backed cell cache
// (pkg/gps/enhanced_cell_cache.go) to persist one opaque, serialized
// ensemble blob per breaker name instead of cell tower locations.
package modelstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/adaptivebreaker/breaker/pkg/logx"
)

// modelsBucket is the single bucket models are stored under, keyed by
// service/breaker name.
const modelsBucket = "models"

// Store is a bbolt-backed orchestrator.ModelSink.
type Store struct {
	db     *bolt.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the bbolt database at path and ensures
// the models bucket exists.
func Open(path string, logger *logx.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("modelstore: create directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("modelstore: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(modelsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("modelstore: init bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Save writes modelBytes under serviceName, overwriting any prior value.
func (s *Store) Save(modelBytes []byte, serviceName string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Put([]byte(serviceName), modelBytes)
	})
	if err != nil {
		return fmt.Errorf("modelstore: save %q: %w", serviceName, err)
	}
	return nil
}

// Load reads the blob stored under serviceName, returning (nil, nil) if
// none has been saved yet.
func (s *Store) Load(serviceName string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(modelsBucket)).Get([]byte(serviceName))
		if v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("modelstore: load %q: %w", serviceName, err)
	}
	return blob, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("modelstore: close: %w", err)
	}
	return nil
}
