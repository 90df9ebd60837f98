package store

import (
	"context"
	"fmt"

	"github.com/oriys/pairtester/internal/domain"
)

// WriteVerification inserts row if no row matches its full natural key
// (every field except the insertdate/updatedate audit timestamps), mirroring
// dbrecorder.py::writeverification.
func (s *Store) WriteVerification(ctx context.Context, row domain.Verification) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM verification
			WHERE uuid = $1 AND site = $2 AND action = $3 AND site1 = $4 AND site2 = $5 AND netstatus = $6 AND urn = $7 AND verified = $8
		)
	`, row.UUID, row.Site, string(row.Action), row.Site1, row.Site2, row.NetStatus, row.URN, boolToInt(row.Verified)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check verification %s/%s: %w", row.UUID, row.URN, err)
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO verification (uuid, site, action, site1, site2, netstatus, urn, verified, insertdate, updatedate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, row.UUID, row.Site, string(row.Action), row.Site1, row.Site2, row.NetStatus, row.URN, boolToInt(row.Verified))
	if err != nil {
		return fmt.Errorf("store: insert verification %s/%s: %w", row.UUID, row.URN, err)
	}
	return nil
}
