// Package sqlite implements audit.Log with SQLite-based persistence.
// Immutability is enforced at this layer: the table is insert-only and
// Update/Delete never issue SQL against existing rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/foundercircle/semindex/audit"
	"github.com/foundercircle/semindex/core"
)

// Log is a SQLite-backed append-only audit ledger.
type Log struct {
	db      *sql.DB
	metrics core.MetricsCollector
}

// New opens (or creates) the audit database at path. Use ":memory:" for
// an ephemeral ledger in tests.
func New(path string, metrics core.MetricsCollector) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if metrics == nil {
		metrics = core.NoopMetricsCollector{}
	}

	l := &Log{db: db, metrics: metrics}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}
	return l, nil
}

func (l *Log) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS action_audit_log (
		log_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		action_details TEXT NOT NULL,
		source_embedding_ids TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_agent ON action_audit_log(agent_id);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON action_audit_log(action_type);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON action_audit_log(created_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Append validates and stores an entry, returning the generated log id.
func (l *Log) Append(ctx context.Context, entry *audit.Entry) (string, error) {
	if err := audit.Validate(entry); err != nil {
		l.metrics.RecordAudit(err)
		return "", err
	}

	logID := uuid.New().String()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	details, err := json.Marshal(entry.ActionDetails)
	if err != nil {
		l.metrics.RecordAudit(err)
		return "", fmt.Errorf("marshal action details: %w", err)
	}
	embeddingIDs, err := json.Marshal(entry.SourceEmbeddingIDs)
	if err != nil {
		l.metrics.RecordAudit(err)
		return "", fmt.Errorf("marshal embedding ids: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO action_audit_log
			(log_id, agent_id, user_id, action_type, action_details, source_embedding_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		logID, entry.AgentID, entry.UserID, entry.ActionType,
		string(details), string(embeddingIDs), createdAt)
	if err != nil {
		l.metrics.RecordAudit(err)
		return "", fmt.Errorf("insert audit entry: %w", err)
	}

	log.Printf("[AUDIT] Appended %s action=%s agent=%s", logID, entry.ActionType, entry.AgentID)
	l.metrics.RecordAudit(nil)
	return logID, nil
}

// Get returns an entry by id.
func (l *Log) Get(ctx context.Context, logID string) (*audit.Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT log_id, agent_id, user_id, action_type, action_details, source_embedding_ids, created_at
		FROM action_audit_log WHERE log_id = ?`, logID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: audit entry %s", core.ErrNotFound, logID)
	}
	if err != nil {
		return nil, fmt.Errorf("query audit entry: %w", err)
	}
	return entry, nil
}

// Query returns entries matching the filter, oldest first. Embedding id
// filtering matches any element of the stored list.
func (l *Log) Query(ctx context.Context, q audit.Query) ([]*audit.Entry, error) {
	var conds []string
	var args []any

	if q.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, q.AgentID)
	}
	if q.ActionType != "" {
		conds = append(conds, "action_type = ?")
		args = append(args, q.ActionType)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, q.Until)
	}

	query := `SELECT log_id, agent_id, user_id, action_type, action_details, source_embedding_ids, created_at
		FROM action_audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if q.EmbeddingID != "" && !containsID(entry.SourceEmbeddingIDs, q.EmbeddingID) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Update always fails; the ledger is append-only.
func (l *Log) Update(ctx context.Context, logID string, entry *audit.Entry) error {
	return l.rejectMutation(ctx, logID, "update")
}

// Delete always fails; the ledger is append-only.
func (l *Log) Delete(ctx context.Context, logID string) error {
	return l.rejectMutation(ctx, logID, "delete")
}

func (l *Log) rejectMutation(ctx context.Context, logID, op string) error {
	var exists int
	err := l.db.QueryRowContext(ctx,
		"SELECT 1 FROM action_audit_log WHERE log_id = ?", logID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: audit entry %s", core.ErrNotFound, logID)
	}
	if err != nil {
		return fmt.Errorf("check audit entry: %w", err)
	}
	return fmt.Errorf("%w: cannot %s audit entry %s", core.ErrImmutable, op, logID)
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*audit.Entry, error) {
	var entry audit.Entry
	var details, embeddingIDs string
	if err := row.Scan(&entry.LogID, &entry.AgentID, &entry.UserID, &entry.ActionType,
		&details, &embeddingIDs, &entry.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(details), &entry.ActionDetails); err != nil {
		return nil, fmt.Errorf("unmarshal action details: %w", err)
	}
	if err := json.Unmarshal([]byte(embeddingIDs), &entry.SourceEmbeddingIDs); err != nil {
		return nil, fmt.Errorf("unmarshal embedding ids: %w", err)
	}
	return &entry, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
