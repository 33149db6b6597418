package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/spamd/spamd/app/storage/engine"
	"github.com/spamd/spamd/lib/spamcheck"
)

// Verdicts is a storage for check verdicts, each aggregated response with its request
type Verdicts struct {
	*engine.SQL
	lock engine.RWLocker
}

// Verdict represents a stored verdict
type Verdict struct {
	ID         string             `db:"id" json:"id"`
	Timestamp  time.Time          `db:"ts" json:"timestamp"`
	Text       string             `db:"text" json:"text"`
	IsSpam     bool               `db:"is_spam" json:"is_spam"`
	Score      float64            `db:"score" json:"score"`
	Recipients []string           `db:"-" json:"recipients"`
	Checks     []string           `db:"-" json:"checks"`  // requested checks
	Results    []spamcheck.Result `db:"-" json:"results"` // results of known checks

	RecipientsJSON string `db:"recipients" json:"-"`
	ChecksJSON     string `db:"checks" json:"-"`
	ResultsJSON    string `db:"results" json:"-"`
}

var verdictsTable = engine.TableConfig{
	Name: "verdicts",
	Create: engine.Same(`CREATE TABLE IF NOT EXISTS verdicts (
		id TEXT PRIMARY KEY,
		ts TIMESTAMP NOT NULL,
		text TEXT NOT NULL,
		is_spam BOOLEAN NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		recipients TEXT NOT NULL,
		checks TEXT NOT NULL,
		results TEXT NOT NULL
	)`),
	Indexes: []engine.Query{
		engine.Same(`CREATE INDEX IF NOT EXISTS idx_verdicts_ts ON verdicts(ts)`),
		engine.Same(`CREATE INDEX IF NOT EXISTS idx_verdicts_is_spam ON verdicts(is_spam)`),
	},
}

// NewVerdict makes a verdict from the request and the response made for it
func NewVerdict(req spamcheck.Request, resp spamcheck.Response) Verdict {
	return Verdict{
		Text:       req.Text,
		Recipients: req.Recipients,
		Checks:     req.Checks,
		IsSpam:     resp.IsSpam,
		Score:      resp.Score,
		Results:    resp.Results,
	}
}

// NewVerdicts creates a new Verdicts storage
func NewVerdicts(ctx context.Context, db *engine.SQL) (*Verdicts, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}
	if err := engine.InitTable(ctx, db, verdictsTable); err != nil {
		return nil, fmt.Errorf("failed to init verdicts storage: %w", err)
	}
	return &Verdicts{SQL: db, lock: db.MakeLock()}, nil
}

// Write adds a new verdict. ID and timestamp are set if empty.
func (v *Verdicts) Write(ctx context.Context, entry Verdict) (Verdict, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	var err error
	if entry.RecipientsJSON, err = marshalJSON(entry.Recipients, "[]"); err != nil {
		return entry, fmt.Errorf("failed to marshal recipients: %w", err)
	}
	if entry.ChecksJSON, err = marshalJSON(entry.Checks, "[]"); err != nil {
		return entry, fmt.Errorf("failed to marshal checks: %w", err)
	}
	if entry.ResultsJSON, err = marshalJSON(entry.Results, "[]"); err != nil {
		return entry, fmt.Errorf("failed to marshal results: %w", err)
	}

	v.lock.Lock()
	defer v.lock.Unlock()

	query := v.Adopt(`INSERT INTO verdicts (id, ts, text, is_spam, score, recipients, checks, results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := v.ExecContext(ctx, query, entry.ID, entry.Timestamp, entry.Text, entry.IsSpam, entry.Score,
		entry.RecipientsJSON, entry.ChecksJSON, entry.ResultsJSON); err != nil {
		return entry, fmt.Errorf("failed to insert verdict: %w", err)
	}
	log.Printf("[DEBUG] verdict %s stored, spam: %v", entry.ID, entry.IsSpam)
	return entry, nil
}

// Read returns the last verdicts, most recent first. All verdicts if limit is 0 or less.
func (v *Verdicts) Read(ctx context.Context, limit int) ([]Verdict, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	query := "SELECT id, ts, text, is_spam, score, recipients, checks, results FROM verdicts ORDER BY ts DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	entries := []Verdict{}
	if err := v.SelectContext(ctx, &entries, v.Adopt(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get verdicts: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if err := json.Unmarshal([]byte(e.RecipientsJSON), &e.Recipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipients of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(e.ChecksJSON), &e.Checks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checks of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(e.ResultsJSON), &e.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results of %s: %w", e.ID, err)
		}
		e.Timestamp = e.Timestamp.Local()
	}
	return entries, nil
}

// Count returns the number of stored verdicts, spam ones only if spamOnly set
func (v *Verdicts) Count(ctx context.Context, spamOnly bool) (int, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	query := "SELECT COUNT(*) FROM verdicts"
	args := []any{}
	if spamOnly {
		query += " WHERE is_spam = ?"
		args = append(args, true)
	}
	var count int
	if err := v.GetContext(ctx, &count, v.Adopt(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count verdicts: %w", err)
	}
	return count, nil
}

// marshalJSON marshals the value, nil slices as the empty value
func marshalJSON[T any](val []T, empty string) (string, error) {
	if val == nil {
		return empty, nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
