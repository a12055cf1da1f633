// Package store persists scene published state and transition history to
// SQLite. The engine is the source of truth while running; the store
// exists so a restart can report the last known booleans before the first
// full rescan completes, and so transitions can be inspected after the
// fact.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a scene has no persisted state.
var ErrNotFound = errors.New("store: scene state not found")

// SceneState is one scene's persisted published state.
type SceneState struct {
	SceneID   string    `json:"scene_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Phase     string    `json:"phase"`
	RawActive bool      `json:"raw_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition is one published-state flip.
type Transition struct {
	ID         int64     `json:"id"`
	SceneID    string    `json:"scene_id"`
	Active     bool      `json:"active"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository defines the interface for scene state persistence.
type Repository interface {
	Upsert(ctx context.Context, state *SceneState) error
	Get(ctx context.Context, sceneID string) (*SceneState, error)
	List(ctx context.Context) ([]SceneState, error)
	Prune(ctx context.Context, keepSceneIDs []string) error
	RecordTransition(ctx context.Context, sceneID string, active bool) error
	RecentTransitions(ctx context.Context, sceneID string, limit int) ([]Transition, error)
}

// SQLiteRepository persists scene state to SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new scene state repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert writes a scene's current published state, inserting or replacing
// the existing row. UpdatedAt is stamped here.
func (r *SQLiteRepository) Upsert(ctx context.Context, state *SceneState) error {
	state.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scene_states (scene_id, slug, name, active, phase, raw_active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scene_id) DO UPDATE SET
		   slug = excluded.slug,
		   name = excluded.name,
		   active = excluded.active,
		   phase = excluded.phase,
		   raw_active = excluded.raw_active,
		   updated_at = excluded.updated_at`,
		state.SceneID, state.Slug, state.Name,
		boolToInt(state.Active), state.Phase, boolToInt(state.RawActive),
		state.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting scene state: %w", err)
	}
	return nil
}

// Get returns one scene's persisted state.
func (r *SQLiteRepository) Get(ctx context.Context, sceneID string) (*SceneState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT scene_id, slug, name, active, phase, raw_active, updated_at
		 FROM scene_states WHERE scene_id = ?`, sceneID)

	state, err := scanSceneState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sceneID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying scene state: %w", err)
	}
	return state, nil
}

// List returns every persisted scene state, ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]SceneState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT scene_id, slug, name, active, phase, raw_active, updated_at
		 FROM scene_states ORDER BY name, scene_id`)
	if err != nil {
		return nil, fmt.Errorf("querying scene states: %w", err)
	}
	defer rows.Close()

	var states []SceneState
	for rows.Next() {
		state, err := scanSceneState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scene state: %w", err)
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scene states: %w", err)
	}
	return states, nil
}

// Prune deletes persisted state for scenes no longer defined. Called after
// a successful scene load so the table tracks the live definition set.
func (r *SQLiteRepository) Prune(ctx context.Context, keepSceneIDs []string) error {
	if len(keepSceneIDs) == 0 {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM scene_states"); err != nil {
			return fmt.Errorf("pruning scene states: %w", err)
		}
		return nil
	}

	query := "DELETE FROM scene_states WHERE scene_id NOT IN (?" +
		strings.Repeat(",?", len(keepSceneIDs)-1) + ")"
	args := make([]any, len(keepSceneIDs))
	for i, id := range keepSceneIDs {
		args[i] = id
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("pruning scene states: %w", err)
	}
	return nil
}

// RecordTransition appends one published-state flip to the transition log.
func (r *SQLiteRepository) RecordTransition(ctx context.Context, sceneID string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scene_transitions (scene_id, active, occurred_at) VALUES (?, ?, ?)`,
		sceneID, boolToInt(active), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording scene transition: %w", err)
	}
	return nil
}

// RecentTransitions returns the latest transitions for a scene, newest
// first. Limit defaults to 50 and caps at 200.
func (r *SQLiteRepository) RecentTransitions(ctx context.Context, sceneID string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 { //nolint:mnd // max page size for transition queries
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, scene_id, active, occurred_at
		 FROM scene_transitions WHERE scene_id = ?
		 ORDER BY id DESC LIMIT ?`, sceneID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scene transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var active int
		var occurredAt string
		if err := rows.Scan(&t.ID, &t.SceneID, &active, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning scene transition: %w", err)
		}
		t.Active = active != 0
		t.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt) //nolint:errcheck // Format is controlled
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scene transitions: %w", err)
	}
	return out, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSceneState(s scanner) (*SceneState, error) {
	var state SceneState
	var active, rawActive int
	var updatedAt string

	if err := s.Scan(&state.SceneID, &state.Slug, &state.Name,
		&active, &state.Phase, &rawActive, &updatedAt); err != nil {
		return nil, err
	}

	state.Active = active != 0
	state.RawActive = rawActive != 0
	state.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled
	return &state, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
