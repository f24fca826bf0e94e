package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/ggonzalez94/agent-sched/internal/model"
)

var ErrAgentNotFound = errors.New("agent not found")

// Store is the durable state behind the scheduler: the agent registry with
// its capital ledger, and the human-review proposal queue. Writes are
// serialized through a file lock so concurrent CLI invocations stay safe.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			active INTEGER NOT NULL,
			auto_execute INTEGER NOT NULL,
			capital REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_agents_active ON agents(active);",
		`CREATE TABLE IF NOT EXISTS proposals (
			proposal_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_proposals_status_created ON proposals(status, created_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init state schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(fn func() error) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock state store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock state store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// UpsertAgent inserts or fully replaces the agent row.
func (s *Store) UpsertAgent(ctx context.Context, agent model.Agent) error {
	if strings.TrimSpace(agent.ID) == "" {
		return fmt.Errorf("upsert agent: missing agent id")
	}
	return s.withLock(func() error {
		payload, err := json.Marshal(agent)
		if err != nil {
			return fmt.Errorf("marshal agent: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO agents (agent_id, active, auto_execute, capital, updated_at, payload)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET
				active=excluded.active,
				auto_execute=excluded.auto_execute,
				capital=excluded.capital,
				updated_at=excluded.updated_at,
				payload=excluded.payload
		`, agent.ID, boolInt(agent.Active), boolInt(agent.AutoExecute), agent.Capital, time.Now().UTC().Unix(), payload)
		if err != nil {
			return fmt.Errorf("upsert agent: %w", err)
		}
		return nil
	})
}

func (s *Store) GetAgent(ctx context.Context, agentID string) (model.Agent, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM agents WHERE agent_id = ?", agentID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
		}
		return model.Agent{}, fmt.Errorf("read agent: %w", err)
	}
	var agent model.Agent
	if err := json.Unmarshal(payload, &agent); err != nil {
		return model.Agent{}, fmt.Errorf("decode agent payload: %w", err)
	}
	return agent, nil
}

// ListActiveAgents returns active agents in stable id order.
func (s *Store) ListActiveAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM agents WHERE active = 1 ORDER BY agent_id")
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]model.Agent, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		var agent model.Agent
		if err := json.Unmarshal(payload, &agent); err != nil {
			return nil, fmt.Errorf("decode agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return agents, nil
}

// ReadCapital returns the persisted capital for the agent.
func (s *Store) ReadCapital(ctx context.Context, agentID string) (float64, error) {
	var capital float64
	err := s.db.QueryRowContext(ctx, "SELECT capital FROM agents WHERE agent_id = ?", agentID).Scan(&capital)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
		}
		return 0, fmt.Errorf("read capital: %w", err)
	}
	return capital, nil
}

// WriteCapital durably rewrites the agent's capital, keeping the payload
// copy in sync. Rewriting the same value is harmless.
func (s *Store) WriteCapital(ctx context.Context, agentID string, value float64) error {
	return s.withLock(func() error {
		agent, err := s.GetAgent(ctx, agentID)
		if err != nil {
			return err
		}
		agent.Capital = value
		payload, err := json.Marshal(agent)
		if err != nil {
			return fmt.Errorf("marshal agent: %w", err)
		}
		res, err := s.db.ExecContext(ctx,
			"UPDATE agents SET capital = ?, payload = ?, updated_at = ? WHERE agent_id = ?",
			value, payload, time.Now().UTC().Unix(), agentID)
		if err != nil {
			return fmt.Errorf("write capital: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
		}
		return nil
	})
}

// SaveProposal appends or updates a human-review proposal.
func (s *Store) SaveProposal(ctx context.Context, proposal model.Proposal) error {
	if strings.TrimSpace(proposal.ID) == "" {
		return fmt.Errorf("save proposal: missing proposal id")
	}
	return s.withLock(func() error {
		payload, err := json.Marshal(proposal)
		if err != nil {
			return fmt.Errorf("marshal proposal: %w", err)
		}
		createdUnix := proposal.CreatedAt.UTC().Unix()
		if proposal.CreatedAt.IsZero() {
			createdUnix = time.Now().UTC().Unix()
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO proposals (proposal_id, agent_id, status, created_at, payload)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(proposal_id) DO UPDATE SET
				status=excluded.status,
				payload=excluded.payload
		`, proposal.ID, proposal.AgentID, proposal.Status, createdUnix, payload)
		if err != nil {
			return fmt.Errorf("save proposal: %w", err)
		}
		return nil
	})
}

// ListProposals returns proposals newest first, optionally filtered by status.
func (s *Store) ListProposals(ctx context.Context, status string, limit int) ([]model.Proposal, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT payload FROM proposals ORDER BY created_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT payload FROM proposals WHERE status = ? ORDER BY created_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]model.Proposal, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan proposal row: %w", err)
		}
		var proposal model.Proposal
		if err := json.Unmarshal(payload, &proposal); err != nil {
			return nil, fmt.Errorf("decode proposal row: %w", err)
		}
		proposals = append(proposals, proposal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposal rows: %w", err)
	}
	return proposals, nil
}

// CountPendingProposals backs the status report.
func (s *Store) CountPendingProposals(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM proposals WHERE status = ?", model.ProposalStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count proposals: %w", err)
	}
	return count, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
