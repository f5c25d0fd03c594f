package database

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revisoria/poe-engine/pkg/model"
)

// DefenseFileStore implements model.Store (C9): an append-only,
// hash-chained ledger per project. Every append is a single transaction
// that locks the project's head row (SELECT ... FOR UPDATE), computes
// the entry's hash from the row it just read, and writes both the new
// entry and the advanced head atomically — so two concurrent Append
// calls for the same project (e.g. the phase orchestrator's independent
// tier, see pkg/phaseorch) serialize correctly even though neither
// caller knows the other's result in advance. The prevHash argument is
// accepted only to satisfy model.Store; it is never trusted — the true
// previous hash is always the one this store itself just read under the
// row lock, not whatever a caller believes the head to be.
type DefenseFileStore struct {
	pool *pgxpool.Pool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDefenseFileStore wraps an existing pool.
func NewDefenseFileStore(pool *pgxpool.Pool) *DefenseFileStore {
	return &DefenseFileStore{pool: pool, locks: make(map[string]*sync.Mutex)}
}

func (s *DefenseFileStore) lockFor(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	return l
}

// Append adds entry to projectID's chain and returns the new head hash.
func (s *DefenseFileStore) Append(ctx context.Context, projectID string, entry model.Entry, _ string) (string, error) {
	pl := s.lockFor(projectID)
	pl.Lock()
	defer pl.Unlock()

	payload, err := canonicalPayload(entry)
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}

	var newHash string
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO defense_file_heads (project_id, head_seq, head_hash)
			 VALUES ($1, 0, '') ON CONFLICT (project_id) DO NOTHING`, projectID)
		if err != nil {
			return fmt.Errorf("ensure head row: %w", err)
		}

		var headSeq int64
		var headHash string
		err = tx.QueryRow(ctx,
			`SELECT head_seq, head_hash FROM defense_file_heads WHERE project_id = $1 FOR UPDATE`,
			projectID).Scan(&headSeq, &headHash)
		if err != nil {
			return fmt.Errorf("read head: %w", err)
		}

		newSeq := headSeq + 1
		newHash = chainHash(headHash, payload)

		_, err = tx.Exec(ctx,
			`INSERT INTO defense_file_entries (project_id, seq, kind, payload, hash, prev_hash)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			projectID, newSeq, string(entry.Kind), payload, newHash, headHash)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE defense_file_heads SET head_seq = $2, head_hash = $3, updated_at = now() WHERE project_id = $1`,
			projectID, newSeq, newHash)
		if err != nil {
			return fmt.Errorf("advance head: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", &model.StorageFailureError{ProjectID: projectID, Op: "append", Err: err}
	}

	return newHash, nil
}

// Read returns every entry for projectID in chain order.
func (s *DefenseFileStore) Read(ctx context.Context, projectID string) ([]model.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, kind, payload, hash, prev_hash FROM defense_file_entries
		 WHERE project_id = $1 ORDER BY seq ASC`, projectID)
	if err != nil {
		return nil, &model.StorageFailureError{ProjectID: projectID, Op: "read", Err: err}
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var seq int64
		var kind, hash, prevHash string
		var payload []byte
		if err := rows.Scan(&seq, &kind, &payload, &hash, &prevHash); err != nil {
			return nil, &model.StorageFailureError{ProjectID: projectID, Op: "read", Err: err}
		}
		entry, err := decodeEntry(model.EntryKind(kind), seq, payload, hash, prevHash)
		if err != nil {
			return nil, &model.StorageFailureError{ProjectID: projectID, Op: "read", Err: err}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageFailureError{ProjectID: projectID, Op: "read", Err: err}
	}
	return entries, nil
}

// chainHash computes sha256(prevHash || payload), hex-encoded.
func chainHash(prevHash string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ChainVerification is the result of recomputing a project's hash chain
// against its stored hash/prev_hash values (spec §8 law #3: hash_i ==
// H(hash_{i-1} || serialize(entry_i)) for all i).
type ChainVerification struct {
	Valid       bool
	EntryCount  int
	FinalHash   string
	TamperedSeq int64 // first entry whose recomputed hash disagrees; 0 when Valid
}

// VerifyChain recomputes the hash chain over entries (as returned by Read,
// in seq order) and reports the first entry where the recorded hash or
// prev_hash diverges from what recomputation over the serialized payload
// produces. A tampered payload, a tampered hash, or a broken prev_hash
// link are all caught the same way: the expected hash stops matching from
// that point on.
func VerifyChain(entries []model.Entry) ChainVerification {
	prevHash := ""
	for _, e := range entries {
		if e.PrevHash != prevHash {
			return ChainVerification{TamperedSeq: e.Seq}
		}
		payload, err := canonicalPayload(e)
		if err != nil {
			return ChainVerification{TamperedSeq: e.Seq}
		}
		want := chainHash(prevHash, payload)
		if want != e.Hash {
			return ChainVerification{TamperedSeq: e.Seq}
		}
		prevHash = e.Hash
	}
	return ChainVerification{Valid: true, EntryCount: len(entries), FinalHash: prevHash}
}

// canonicalPayload serializes exactly the entry's active field (selected
// by Kind) to compact JSON with sorted keys. The struct is marshalled once,
// decoded into generic maps (numbers kept as json.Number) and marshalled
// again: encoding/json emits map keys in sorted order and omits all
// insignificant whitespace when no indentation option is used.
func canonicalPayload(entry model.Entry) ([]byte, error) {
	var active any
	switch entry.Kind {
	case model.EntryKindSnapshot:
		active = entry.Snapshot
	case model.EntryKindDeliberation:
		active = entry.Deliberation
	case model.EntryKindTransition:
		active = entry.Transition
	default:
		return nil, fmt.Errorf("unknown entry kind %q", entry.Kind)
	}
	raw, err := json.Marshal(active)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func decodeEntry(kind model.EntryKind, seq int64, payload []byte, hash, prevHash string) (model.Entry, error) {
	entry := model.Entry{Kind: kind, Seq: seq, Hash: hash, PrevHash: prevHash}
	switch kind {
	case model.EntryKindSnapshot:
		var snap model.ProjectSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return model.Entry{}, err
		}
		entry.Snapshot = &snap
	case model.EntryKindDeliberation:
		var d model.Deliberation
		if err := json.Unmarshal(payload, &d); err != nil {
			return model.Entry{}, err
		}
		entry.Deliberation = &d
	case model.EntryKindTransition:
		var t model.Transition
		if err := json.Unmarshal(payload, &t); err != nil {
			return model.Entry{}, err
		}
		entry.Transition = &t
	default:
		return model.Entry{}, fmt.Errorf("unknown entry kind %q", kind)
	}
	return entry, nil
}
