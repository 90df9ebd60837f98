// Package store is the Postgres persistence layer for the normalized
// tables named in spec.md §3, following the teacher's pgx/v5 + pgxpool
// connection-per-operation pattern with a CREATE TABLE IF NOT EXISTS
// bootstrap.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres-backed implementation of every table access the
// tester, recorder and archiver need.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against dsn, verifies connectivity, and
// bootstraps the schema, mirroring the teacher's NewPostgresStore.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create postgres pool: %w", err)
	}

	s := &Store{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("store: not initialized")
	}
	return s.pool.Ping(ctx)
}

// ensureSchema creates the eight tables named in spec.md §3, one-shot and
// idempotent, per spec.md §5's "gated by CREATE TABLE IF NOT EXISTS" note.
func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id SERIAL PRIMARY KEY,
			uuid VARCHAR(255) NOT NULL UNIQUE,
			port1 VARCHAR(255) NOT NULL,
			port2 VARCHAR(255) NOT NULL,
			finalstate INTEGER NOT NULL CHECK (finalstate IN (0,1)),
			pathfindissue INTEGER NOT NULL CHECK (pathfindissue IN (0,1)),
			vlan VARCHAR(4) NOT NULL,
			requesttype VARCHAR(64) NOT NULL,
			insertdate TIMESTAMPTZ NOT NULL DEFAULT now(),
			updatedate TIMESTAMPTZ NOT NULL DEFAULT now(),
			fileloc VARCHAR(4096),
			site1 VARCHAR(64) NOT NULL,
			site2 VARCHAR(64) NOT NULL,
			failure VARCHAR(4096)
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id SERIAL PRIMARY KEY,
			uuid VARCHAR(255) NOT NULL,
			action VARCHAR(255) NOT NULL,
			site1 VARCHAR(64) NOT NULL,
			site2 VARCHAR(64) NOT NULL,
			insertdate TIMESTAMPTZ NOT NULL DEFAULT now(),
			updatedate TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS verification (
			id SERIAL PRIMARY KEY,
			uuid VARCHAR(255) NOT NULL,
			site VARCHAR(64) NOT NULL,
			action VARCHAR(255) NOT NULL,
			site1 VARCHAR(64) NOT NULL,
			site2 VARCHAR(64) NOT NULL,
			netstatus VARCHAR(255) NOT NULL,
			urn VARCHAR(4096) NOT NULL,
			verified INTEGER NOT NULL CHECK (verified IN (0,1)),
			insertdate TIMESTAMPTZ NOT NULL DEFAULT now(),
			updatedate TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS requeststates (
			id SERIAL PRIMARY KEY,
			uuid VARCHAR(255) NOT NULL,
			state VARCHAR(255) NOT NULL,
			configstate VARCHAR(255) NOT NULL,
			action VARCHAR(255) NOT NULL,
			site1 VARCHAR(64) NOT NULL,
			site2 VARCHAR(64) NOT NULL,
			totaltime INTEGER NOT NULL,
			sincestart INTEGER NOT NULL,
			entertime TIMESTAMPTZ NOT NULL DEFAULT now(),
			insertdate TIMESTAMPTZ NOT NULL DEFAULT now(),
			updatedate TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS runnerinfo (
			id SERIAL PRIMARY KEY,
			alive BOOLEAN NOT NULL,
			totalworkers INTEGER NOT NULL,
			totalqueue INTEGER NOT NULL,
			remainingqueue INTEGER NOT NULL,
			lockedrequests INTEGER NOT NULL,
			updatedate TIMESTAMPTZ NOT NULL DEFAULT now(),
			insertdate TIMESTAMPTZ NOT NULL DEFAULT now(),
			starttime TIMESTAMPTZ NOT NULL DEFAULT now(),
			nextrun TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS lockedrequests (
			id SERIAL PRIMARY KEY,
			uuid VARCHAR(255) NOT NULL UNIQUE,
			port1 VARCHAR(255) NOT NULL,
			port2 VARCHAR(255) NOT NULL,
			finalstate INTEGER NOT NULL CHECK (finalstate IN (0,1)),
			pathfindissue INTEGER NOT NULL CHECK (pathfindissue IN (0,1)),
			vlan VARCHAR(4) NOT NULL,
			requesttype VARCHAR(64) NOT NULL,
			insertdate TIMESTAMPTZ NOT NULL DEFAULT now(),
			updatedate TIMESTAMPTZ NOT NULL DEFAULT now(),
			fileloc VARCHAR(4096),
			site1 VARCHAR(64) NOT NULL,
			site2 VARCHAR(64) NOT NULL,
			failure VARCHAR(4096)
		)`,
		`CREATE TABLE IF NOT EXISTS pingresults (
			id SERIAL PRIMARY KEY,
			uuid VARCHAR(255) NOT NULL,
			site1 VARCHAR(64) NOT NULL,
			site2 VARCHAR(64) NOT NULL,
			action VARCHAR(255) NOT NULL,
			port1 VARCHAR(255) NOT NULL,
			port2 VARCHAR(255) NOT NULL,
			ipto VARCHAR(255) NOT NULL,
			ipfrom VARCHAR(255) NOT NULL,
			vlanfrom VARCHAR(17) NOT NULL,
			vlanto VARCHAR(17) NOT NULL,
			insertdate TIMESTAMPTZ NOT NULL DEFAULT now(),
			updatedate TIMESTAMPTZ NOT NULL DEFAULT now(),
			failed INTEGER NOT NULL CHECK (failed IN (0,1)),
			transmitted INTEGER NOT NULL,
			received INTEGER NOT NULL,
			packetloss DOUBLE PRECISION NOT NULL,
			rttmin DOUBLE PRECISION NOT NULL,
			rttavg DOUBLE PRECISION NOT NULL,
			rttmax DOUBLE PRECISION NOT NULL,
			rttmdev DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stateorder (
			state VARCHAR(255) NOT NULL,
			action VARCHAR(255) NOT NULL,
			configstate VARCHAR(255) NOT NULL,
			orderid INTEGER NOT NULL,
			PRIMARY KEY (state, action, configstate)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verification_uuid ON verification(uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_requeststates_uuid ON requeststates(uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_pingresults_uuid ON pingresults(uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_uuid ON actions(uuid)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}
