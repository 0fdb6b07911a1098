// Package pg implementa core.ClientRepository sobre Postgres (pgx).
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tuning agrupa parámetros opcionales del pool.
type Tuning struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// DB es la superficie de pgx que usa el store (pool, conn o tx).
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// New abre el pool. Igual que el resto de stores, el ping inicial no es fatal:
// el servicio arranca aunque la DB esté caída momentáneamente.
func New(ctx context.Context, dsn string, t Tuning) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if t.MaxConns > 0 {
		pcfg.MaxConns = t.MaxConns
	}
	if t.MinConns > 0 {
		pcfg.MinConns = t.MinConns
	}
	if t.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = t.ConnMaxLifetime
		pcfg.MaxConnIdleTime = t.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	log := logger.From(ctx).With(logger.Component("store.pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		log.Info("pg pool ready")
	}
	return &Store{db: pool, pool: pool}, nil
}

// NewWithDB construye el store sobre una conexión existente.
func NewWithDB(db DB) *Store { return &Store{db: db} }

// Ping verifica la conexión (nil si se construyó con NewWithDB).
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const selectClient = `
SELECT id, handler, use_encryption, signature_algorithm, signature_secret,
       COALESCE(encryption_algorithm, ''), COALESCE(encryption_method, ''), COALESCE(encryption_secret, ''),
       access_token_validity_seconds, refresh_token_validity_seconds
FROM client_config
WHERE id = $1`

// Load implementa core.ClientRepository.
func (s *Store) Load(ctx context.Context, id string) (*core.ClientConfig, error) {
	var c core.ClientConfig
	err := s.db.QueryRow(ctx, selectClient, id).Scan(
		&c.ID, &c.Handler, &c.UseEncryption, &c.SignatureAlgorithm, &c.SignatureSecret,
		&c.EncryptionAlgorithm, &c.EncryptionMethod, &c.EncryptionSecret,
		&c.AccessTokenValiditySeconds, &c.RefreshTokenValiditySeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: load client %s: %w", id, err)
	}
	return &c, nil
}

const upsertClient = `
INSERT INTO client_config (
    id, handler, use_encryption, signature_algorithm, signature_secret,
    encryption_algorithm, encryption_method, encryption_secret,
    access_token_validity_seconds, refresh_token_validity_seconds)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10)
ON CONFLICT (id) DO UPDATE SET
    handler = EXCLUDED.handler,
    use_encryption = EXCLUDED.use_encryption,
    signature_algorithm = EXCLUDED.signature_algorithm,
    signature_secret = EXCLUDED.signature_secret,
    encryption_algorithm = EXCLUDED.encryption_algorithm,
    encryption_method = EXCLUDED.encryption_method,
    encryption_secret = EXCLUDED.encryption_secret,
    access_token_validity_seconds = EXCLUDED.access_token_validity_seconds,
    refresh_token_validity_seconds = EXCLUDED.refresh_token_validity_seconds,
    updated_at = NOW()`

// Upsert implementa core.ClientWriter.
func (s *Store) Upsert(ctx context.Context, c *core.ClientConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, upsertClient,
		c.ID, c.Handler, c.UseEncryption, c.SignatureAlgorithm, c.SignatureSecret,
		c.EncryptionAlgorithm, c.EncryptionMethod, c.EncryptionSecret,
		c.AccessTokenValiditySeconds, c.RefreshTokenValiditySeconds,
	)
	if err != nil {
		return fmt.Errorf("pg: upsert client %s: %w", c.ID, err)
	}
	return nil
}

// Delete implementa core.ClientWriter.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM client_config WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete client %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
