// Package store implements a local write-behind cache of per-job
// estimated-start-time and execvnode hints (spec §4.K step 7: "write back
// estimated start times and execvnodes for jobs whose can_not_run flag was
// set"). The cache survives process restart so a freshly started cycle
// driver can answer status queries about a can_not_run job's last known
// estimate before the next cycle recomputes it, using
// go.etcd.io/bbolt, matching the teacher's pkg/storage bucket-CRUD
// pattern.
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEstimates = []byte("estimates")

// Estimate is one job's cached estimated-start-time / execvnode hint.
type Estimate struct {
	JobID         string    `json:"job_id"`
	EstimatedAt   time.Time `json:"estimated_at"`
	Start         time.Time `json:"start"`
	ExecVnode     string    `json:"exec_vnode"`
	Reason        string    `json:"reason"`
}

// Store wraps a bbolt database holding the estimate cache.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the estimate cache at
// <dataDir>/qsched.db, matching the teacher's NewBoltStore dataDir
// convention.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "qsched.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", dbPath, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEstimates)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutEstimate upserts a job's estimate record (spec §4.K step 7 write-back).
func (s *Store) PutEstimate(e Estimate) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal estimate %s: %w", e.JobID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEstimates).Put([]byte(e.JobID), data)
	})
}

// PutEstimates upserts many estimates in one transaction, the batch shape
// the cycle driver uses at cycle end.
func (s *Store) PutEstimates(estimates []Estimate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEstimates)
		for _, e := range estimates {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("store: marshal estimate %s: %w", e.JobID, err)
			}
			if err := b.Put([]byte(e.JobID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEstimate looks up a job's cached estimate.
func (s *Store) GetEstimate(jobID string) (Estimate, bool, error) {
	var e Estimate
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEstimates).Get([]byte(jobID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return Estimate{}, false, fmt.Errorf("store: get estimate %s: %w", jobID, err)
	}
	return e, found, nil
}

// DeleteEstimate removes a job's cached estimate.
func (s *Store) DeleteEstimate(jobID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEstimates).Delete([]byte(jobID))
	})
}

// ListEstimates returns every cached estimate, ordered by key (job id).
func (s *Store) ListEstimates() ([]Estimate, error) {
	var out []Estimate
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEstimates).ForEach(func(k, v []byte) error {
			var e Estimate
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: list estimates: %w", err)
	}
	return out, nil
}
