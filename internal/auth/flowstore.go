package auth

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// FlowStore keeps pending authorizations until their redirect returns.
// Take removes the record, so a state nonce is redeemable once.
type FlowStore interface {
	Save(rec FlowRecord) error
	Take(state string) (FlowRecord, error)
}

// MemoryFlowStore is a FlowStore scoped to one process.
type MemoryFlowStore struct {
	mu    sync.Mutex
	flows map[string]FlowRecord
}

func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{flows: map[string]FlowRecord{}}
}

func (s *MemoryFlowStore) Save(rec FlowRecord) error {
	if rec.State == "" {
		return fmt.Errorf("flow record has no state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[rec.State] = rec
	return nil
}

func (s *MemoryFlowStore) Take(state string) (FlowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.flows[state]
	if !ok {
		return FlowRecord{}, ErrUnknownFlow
	}
	delete(s.flows, state)
	return rec, nil
}

// Len returns the number of pending records.
func (s *MemoryFlowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

const (
	flowDirPerm     = fs.FileMode(0o700)
	flowFilePerm    = fs.FileMode(0o600)
	flowOpenTimeout = 5 * time.Second
)

var flowsBucket = []byte("oauth_flows")

// BoltFlowStore persists pending authorizations in a bbolt file so a flow
// started by one process can be completed by another.
type BoltFlowStore struct {
	db *bolt.DB
}

// OpenBoltFlowStore opens or creates the store at path.
func OpenBoltFlowStore(path string) (*BoltFlowStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), flowDirPerm); err != nil {
		return nil, fmt.Errorf("creating flow store directory: %w", err)
	}

	db, err := bolt.Open(path, flowFilePerm, &bolt.Options{Timeout: flowOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening flow store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(flowsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing flow store: %w", err)
	}

	return &BoltFlowStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltFlowStore) Close() error {
	return s.db.Close()
}

func (s *BoltFlowStore) Save(rec FlowRecord) error {
	if rec.State == "" {
		return fmt.Errorf("flow record has no state")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding flow record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(flowsBucket).Put([]byte(rec.State), data)
	})
}

func (s *BoltFlowStore) Take(state string) (FlowRecord, error) {
	var rec FlowRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(flowsBucket)
		data := b.Get([]byte(state))
		if data == nil {
			return ErrUnknownFlow
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decoding flow record: %w", err)
		}
		return b.Delete([]byte(state))
	})
	if err != nil {
		return FlowRecord{}, err
	}
	return rec, nil
}

// Pending returns all stored records, oldest first.
func (s *BoltFlowStore) Pending() ([]FlowRecord, error) {
	var out []FlowRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(flowsBucket).ForEach(func(_, v []byte) error {
			var rec FlowRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Prune deletes records created more than ttl before now, along with any
// that no longer decode, and returns how many were removed.
func (s *BoltFlowStore) Prune(now time.Time, ttl time.Duration) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(flowsBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec FlowRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.Expired(now, ttl) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
