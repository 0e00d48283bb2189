package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// PostgresBackend persists the store state as JSONB rows in PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects to the database, applies the schema and
// returns a ready backend.
func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 30
	config.MinConns = 5
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = 2 * time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	backend := &PostgresBackend{pool: pool}
	if err := backend.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return backend, nil
}

func (b *PostgresBackend) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hub_deployments (
		id     BIGINT PRIMARY KEY,
		record JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hub_deployment_events (
		id            BIGINT PRIMARY KEY,
		deployment_id BIGINT NOT NULL,
		event         JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_hub_deployment_events_deployment
		ON hub_deployment_events (deployment_id, id);

	CREATE TABLE IF NOT EXISTS hub_templates (
		id       BIGINT PRIMARY KEY,
		template JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hub_binaries (
		hash TEXT PRIMARY KEY,
		data BYTEA NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hub_access_rights (
		id     INT PRIMARY KEY CHECK (id = 1),
		rights JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hub_events (
		id    BIGINT PRIMARY KEY,
		event JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hub_config (
		id     INT PRIMARY KEY CHECK (id = 1),
		config JSONB NOT NULL
	);
	`

	_, err := b.pool.Exec(ctx, schema)
	return err
}

func (b *PostgresBackend) Load(ctx context.Context) (Snapshot, error) {
	snapshot := Snapshot{
		Deployments: make(map[types.DeploymentID]*types.DeploymentRecord),
		Templates:   make(map[types.TemplateID]*types.ContractTemplate),
		Binaries:    make(map[string][]byte),
	}

	rows, err := b.pool.Query(ctx, `SELECT id, record FROM hub_deployments`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load deployments: %w", err)
	}
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		var record types.DeploymentRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("failed to decode deployment %d: %w", id, err)
		}
		snapshot.Deployments[types.DeploymentID(id)] = &record
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = b.pool.Query(ctx, `SELECT event FROM hub_deployment_events ORDER BY id`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load deployment events: %w", err)
	}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		var event types.DeploymentEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("failed to decode deployment event: %w", err)
		}
		snapshot.Events = append(snapshot.Events, event)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = b.pool.Query(ctx, `SELECT id, template FROM hub_templates`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load templates: %w", err)
	}
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		var template types.ContractTemplate
		if err := json.Unmarshal(raw, &template); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("failed to decode template %d: %w", id, err)
		}
		snapshot.Templates[types.TemplateID(id)] = &template
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = b.pool.Query(ctx, `SELECT hash, data FROM hub_binaries`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load binaries: %w", err)
	}
	for rows.Next() {
		var (
			hash string
			data []byte
		)
		if err := rows.Scan(&hash, &data); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		snapshot.Binaries[hash] = data
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	var rightsRaw []byte
	err = b.pool.QueryRow(ctx, `SELECT rights FROM hub_access_rights WHERE id = 1`).Scan(&rightsRaw)
	if err == nil {
		if err := json.Unmarshal(rightsRaw, &snapshot.AccessRights); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode access rights: %w", err)
		}
	}

	rows, err = b.pool.Query(ctx, `SELECT event FROM hub_events ORDER BY id`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load hub events: %w", err)
	}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		var event types.HubEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("failed to decode hub event: %w", err)
		}
		snapshot.HubEvents = append(snapshot.HubEvents, event)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	var configRaw []byte
	err = b.pool.QueryRow(ctx, `SELECT config FROM hub_config WHERE id = 1`).Scan(&configRaw)
	if err == nil {
		var config types.HubConfig
		if err := json.Unmarshal(configRaw, &config); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode config: %w", err)
		}
		snapshot.Config = &config
	}

	return snapshot, nil
}

func (b *PostgresBackend) SaveDeployment(ctx context.Context, id types.DeploymentID, record *types.DeploymentRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO hub_deployments (id, record) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record`,
		int64(id), raw)
	return err
}

func (b *PostgresBackend) SaveEvent(ctx context.Context, event types.DeploymentEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO hub_deployment_events (id, deployment_id, event) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		int64(event.ID), int64(event.DeploymentID), raw)
	return err
}

func (b *PostgresBackend) SaveTemplate(ctx context.Context, id types.TemplateID, template *types.ContractTemplate) error {
	raw, err := json.Marshal(template)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO hub_templates (id, template) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET template = EXCLUDED.template`,
		int64(id), raw)
	return err
}

func (b *PostgresBackend) SaveBinary(ctx context.Context, hash string, data []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO hub_binaries (hash, data) VALUES ($1, $2)
		ON CONFLICT (hash) DO NOTHING`,
		hash, data)
	return err
}

func (b *PostgresBackend) DeleteBinary(ctx context.Context, hash string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM hub_binaries WHERE hash = $1`, hash)
	return err
}

func (b *PostgresBackend) SaveAccessRights(ctx context.Context, rights []types.AccessRight) error {
	raw, err := json.Marshal(rights)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO hub_access_rights (id, rights) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET rights = EXCLUDED.rights`,
		raw)
	return err
}

func (b *PostgresBackend) SaveHubEvent(ctx context.Context, event types.HubEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO hub_events (id, event) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		int64(event.ID), raw)
	return err
}

func (b *PostgresBackend) SaveConfig(ctx context.Context, config types.HubConfig) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO hub_config (id, config) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config`,
		raw)
	return err
}

func (b *PostgresBackend) Close() {
	b.pool.Close()
}

var _ Backend = (*PostgresBackend)(nil)
