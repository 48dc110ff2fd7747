// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package schedule implements the relay's durable heartbeat scheduler:
// a persistent token→timestamp map backed by an embedded SQL database,
// indexed by an in-memory min-heap of disposable "pop hints". The map
// is the single source of truth; the heap is only ever a best-effort
// index into it, tolerant of stale entries left behind by concurrent
// reinsertion or removal.
package schedule

import (
	"container/heap"
	"database/sql"
	"encoding/binary"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	token TEXT PRIMARY KEY,
	ts    BLOB NOT NULL
)`

// entry is one (timestamp, token) candidate on the heap.
type entry struct {
	ts    uint64
	token string
}

// minHeap orders entries by ascending timestamp.
type minHeap []entry

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].ts < h[j].ts }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(entry)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Schedule is the durable heartbeat scheduler described in package docs.
type Schedule struct {
	db *sql.DB

	mu   sync.Mutex
	heap minHeap
}

// Open opens or creates the persistent map at path and rebuilds the heap
// from its current contents. A value shorter than 8 bytes is treated as
// timestamp zero, matching legacy/partial rows.
func Open(path string) (*Schedule, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "open schedule database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "create schedule schema")
	}

	s := &Schedule{db: db}

	rows, err := db.Query(`SELECT token, ts FROM tokens`)
	if err != nil {
		db.Close()
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "load schedule rows")
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		var raw []byte
		if err := rows.Scan(&token, &raw); err != nil {
			db.Close()
			return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "scan schedule row")
		}
		s.heap = append(s.heap, entry{ts: decodeTimestamp(raw), token: token})
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "iterate schedule rows")
	}
	heap.Init(&s.heap)

	return s, nil
}

func decodeTimestamp(raw []byte) uint64 {
	if len(raw) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw[:8])
}

func encodeTimestamp(ts uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ts)
	return buf
}

// Insert writes ts under token in the persistent map and pushes a
// matching heap hint. Idempotent with respect to the map; the heap may
// now carry a second, now-stale, entry for the same token.
func (s *Schedule) Insert(token string, ts uint64) error {
	if _, err := s.db.Exec(
		`INSERT INTO tokens (token, ts) VALUES (?, ?)
		 ON CONFLICT(token) DO UPDATE SET ts = excluded.ts`,
		token, encodeTimestamp(ts),
	); err != nil {
		return relerrors.Wrap(err, relerrors.KindUnavailable, "insert schedule entry")
	}

	s.mu.Lock()
	heap.Push(&s.heap, entry{ts: ts, token: token})
	s.mu.Unlock()
	return nil
}

// InsertNow inserts token with the current wall-clock time.
func (s *Schedule) InsertNow(token string) error {
	return s.Insert(token, uint64(time.Now().Unix()))
}

// Remove deletes token from the persistent map. The heap is not
// scrubbed; any outstanding hint for token is discarded lazily on Pop.
func (s *Schedule) Remove(token string) error {
	if _, err := s.db.Exec(`DELETE FROM tokens WHERE token = ?`, token); err != nil {
		return relerrors.Wrap(err, relerrors.KindUnavailable, "remove schedule entry")
	}
	return nil
}

// Pop returns the token with the smallest valid timestamp, or ok=false
// if the schedule is empty. It repeatedly pops the heap root, discarding
// any hint whose timestamp no longer matches the map (the token was
// removed or reinserted with a different timestamp since the hint was
// pushed), until it finds one that is still current or the heap drains.
func (s *Schedule) Pop() (ts uint64, token string, ok bool, err error) {
	for {
		s.mu.Lock()
		if s.heap.Len() == 0 {
			s.mu.Unlock()
			return 0, "", false, nil
		}
		candidate := heap.Pop(&s.heap).(entry)
		s.mu.Unlock()

		var raw []byte
		row := s.db.QueryRow(`SELECT ts FROM tokens WHERE token = ?`, candidate.token)
		scanErr := row.Scan(&raw)
		if scanErr == sql.ErrNoRows {
			continue
		}
		if scanErr != nil {
			return 0, "", false, relerrors.Wrap(scanErr, relerrors.KindUnavailable, "read schedule entry")
		}
		if decodeTimestamp(raw) != candidate.ts {
			continue
		}
		return candidate.ts, candidate.token, true, nil
	}
}

// Count returns the heap's size, an upper-bound overestimate of the
// number of live tokens (it may still hold stale entries for tokens
// that were removed or reinserted).
func (s *Schedule) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// Flush forces the persistent map to stable storage.
func (s *Schedule) Flush() error {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(FULL)`); err != nil {
		return relerrors.Wrap(err, relerrors.KindUnavailable, "flush schedule database")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Schedule) Close() error {
	return s.db.Close()
}
