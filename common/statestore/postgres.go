package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowforge/engine/common/value"
)

// PostgresStore is a durable StateStore, grounded on the teacher's
// common/db pgxpool wiring and selected when StateStore.Type is
// "postgres". It implements the full StateStore interface, JoinArrive
// included, and then serves every instance of that deployment; nothing
// copies instances between it and RedisStore or falls back from one to
// the other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Schema (created out of band by migrations, not by this package):
//
//	CREATE TABLE instances (
//	    id TEXT PRIMARY KEY,
//	    blueprint_id TEXT NOT NULL,
//	    status TEXT NOT NULL,
//	    vars JSONB NOT NULL DEFAULT '{}'
//	);
//	CREATE TABLE join_counters (
//	    instance_id TEXT NOT NULL,
//	    node_index INT NOT NULL,
//	    remaining INT NOT NULL,
//	    PRIMARY KEY (instance_id, node_index)
//	);

func (s *PostgresStore) CreateInstance(ctx context.Context, instanceID, blueprintID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO instances (id, blueprint_id, status, vars) VALUES ($1, $2, $3, '{}')`,
		instanceID, blueprintID, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("statestore: create instance: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVar(ctx context.Context, instanceID, name string) (value.Value, bool, error) {
	vars, err := s.GetVarsSnapshot(ctx, instanceID)
	if err != nil {
		return value.Null(), false, err
	}
	v, ok := vars[name]
	return v, ok, nil
}

func (s *PostgresStore) SetVar(ctx context.Context, instanceID, name string, v value.Value) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("statestore: encode var %q: %w", name, err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE instances SET vars = jsonb_set(vars, $2, $3::jsonb, true) WHERE id = $1`,
		instanceID, "{"+name+"}", string(data))
	if err != nil {
		return fmt.Errorf("statestore: set var %q: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) GetVarsSnapshot(ctx context.Context, instanceID string) (map[string]value.Value, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT vars FROM instances WHERE id = $1`, instanceID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("statestore: snapshot vars: %w", err)
	}
	var native map[string]interface{}
	if err := json.Unmarshal(raw, &native); err != nil {
		return nil, fmt.Errorf("statestore: decode vars: %w", err)
	}
	out := make(map[string]value.Value, len(native))
	for k, v := range native {
		out[k] = value.FromNative(v)
	}
	return out, nil
}

func (s *PostgresStore) JoinArrive(ctx context.Context, instanceID string, joinNodeIndex int, expect int) (JoinResult, error) {
	// A single upsert: the first arrival inserts expect-1 (it is itself
	// one arrival), every later arrival hits the conflict branch and
	// decrements the existing row. Postgres upserts this row atomically,
	// so concurrent arrivals serialize on the row lock the same way the
	// Redis Lua script serializes on the single key.
	var remaining int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO join_counters (instance_id, node_index, remaining)
		VALUES ($1, $2, $3 - 1)
		ON CONFLICT (instance_id, node_index)
		DO UPDATE SET remaining = join_counters.remaining - 1
		RETURNING remaining
	`, instanceID, joinNodeIndex, expect).Scan(&remaining)
	if err != nil {
		return JoinResult{}, fmt.Errorf("statestore: join arrive: %w", err)
	}
	return JoinResult{Remaining: remaining, HitZero: remaining == 0}, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, instanceID string, status Status) error {
	_, err := s.pool.Exec(ctx, `UPDATE instances SET status = $2 WHERE id = $1`, instanceID, string(status))
	if err != nil {
		return fmt.Errorf("statestore: set status: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStatus(ctx context.Context, instanceID string) (Status, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM instances WHERE id = $1`, instanceID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("statestore: get status: %w", err)
	}
	return Status(status), nil
}
