package store

import (
	"context"
	"fmt"

	"github.com/oriys/pairtester/internal/domain"
)

// WriteAction inserts row if no row with the same (uuid, action) exists,
// mirroring dbrecorder.py::writeactions.
func (s *Store) WriteAction(ctx context.Context, row domain.ActionRow) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM actions WHERE uuid = $1 AND action = $2)
	`, row.UUID, string(row.Action)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check action %s/%s: %w", row.UUID, row.Action, err)
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO actions (uuid, action, site1, site2, insertdate, updatedate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, row.UUID, string(row.Action), row.Site1, row.Site2, row.InsertDate, row.UpdateDate)
	if err != nil {
		return fmt.Errorf("store: insert action %s/%s: %w", row.UUID, row.Action, err)
	}
	return nil
}
