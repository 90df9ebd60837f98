package store

import (
	"context"
	"fmt"

	"github.com/oriys/pairtester/internal/domain"
)

// WriteRequestState inserts row if no row matches on its natural key
// (uuid, state, configstate, action, site1, site2) — excluding totaltime/
// entertime/insertdate/updatedate, mirroring dbrecorder.py::writerequeststate.
func (s *Store) WriteRequestState(ctx context.Context, row domain.RequestState) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM requeststates
			WHERE uuid = $1 AND state = $2 AND configstate = $3 AND action = $4 AND site1 = $5 AND site2 = $6
		)
	`, row.UUID, row.State, string(row.ConfigState), string(row.Action), row.Site1, row.Site2).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check requeststate %s/%s: %w", row.UUID, row.State, err)
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO requeststates (uuid, state, configstate, action, site1, site2, totaltime, sincestart, entertime, insertdate, updatedate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, row.UUID, row.State, string(row.ConfigState), string(row.Action), row.Site1, row.Site2, row.TotalTime, row.SinceStart, row.EnterTime)
	if err != nil {
		return fmt.Errorf("store: insert requeststate %s/%s: %w", row.UUID, row.State, err)
	}
	return nil
}
