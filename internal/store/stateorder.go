package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oriys/pairtester/internal/domain"
)

// SeedStateOrder populates the stateorder table from rows if it is empty,
// mirroring dbstart.py::populatenewstates's one-shot seeding (the seed
// itself is computed by internal/stateorder.Seed).
func (s *Store) SeedStateOrder(ctx context.Context, rows []domain.StateOrderEntry) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM stateorder`).Scan(&count); err != nil {
		return fmt.Errorf("store: count stateorder: %w", err)
	}
	if count > 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`INSERT INTO stateorder (state, action, configstate, orderid) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			r.State, string(r.Action), string(r.ConfigState), r.OrderID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: seed stateorder: %w", err)
		}
	}
	return nil
}

// ListStateOrder returns the full canonical reference table.
func (s *Store) ListStateOrder(ctx context.Context) ([]domain.StateOrderEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, action, configstate, orderid FROM stateorder ORDER BY orderid`)
	if err != nil {
		return nil, fmt.Errorf("store: list stateorder: %w", err)
	}
	defer rows.Close()

	var out []domain.StateOrderEntry
	for rows.Next() {
		var e domain.StateOrderEntry
		var action, configstate string
		if err := rows.Scan(&e.State, &action, &configstate, &e.OrderID); err != nil {
			return nil, fmt.Errorf("store: scan stateorder: %w", err)
		}
		e.Action = domain.Action(action)
		e.ConfigState = domain.ConfigState(configstate)
		out = append(out, e)
	}
	return out, rows.Err()
}
