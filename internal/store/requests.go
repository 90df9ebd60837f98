package store

import (
	"context"
	"fmt"

	"github.com/oriys/pairtester/internal/domain"
)

// WriteRequest inserts req if no row with the same uuid exists yet,
// mirroring dbrecorder.py::writerequest's natural-key-equality check.
func (s *Store) WriteRequest(ctx context.Context, req domain.Request) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM requests WHERE uuid = $1)`, req.UUID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check request %s: %w", req.UUID, err)
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO requests (uuid, port1, port2, finalstate, pathfindissue, vlan, requesttype, insertdate, updatedate, fileloc, site1, site2, failure)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		req.UUID, req.Port1, req.Port2, boolToInt(req.FinalState), boolToInt(req.PathfindIssue),
		req.Vlan, string(req.RequestType), req.InsertDate, req.UpdateDate, req.FileLoc, req.Site1, req.Site2, req.Failure)
	if err != nil {
		return fmt.Errorf("store: insert request %s: %w", req.UUID, err)
	}
	return nil
}

// UpdateRequestFileLoc updates fileloc and updatedate for an existing
// request, mirroring dbrecorder.py::updaterequest.
func (s *Store) UpdateRequestFileLoc(ctx context.Context, uuid, newFileLoc string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE requests SET fileloc = $1, updatedate = now() WHERE uuid = $2`, newFileLoc, uuid)
	if err != nil {
		return fmt.Errorf("store: update request fileloc %s: %w", uuid, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: update request fileloc: uuid %s not present", uuid)
	}
	return nil
}

// GetRequestByUUID returns the Request row for uuid, or ok=false if absent.
func (s *Store) GetRequestByUUID(ctx context.Context, uuid string) (domain.Request, bool, error) {
	var req domain.Request
	var finalstate, pathfindissue int
	var requesttype string

	row := s.pool.QueryRow(ctx, `
		SELECT uuid, port1, port2, finalstate, pathfindissue, vlan, requesttype, insertdate, updatedate, fileloc, site1, site2, failure
		FROM requests WHERE uuid = $1
	`, uuid)
	err := row.Scan(&req.UUID, &req.Port1, &req.Port2, &finalstate, &pathfindissue, &req.Vlan, &requesttype,
		&req.InsertDate, &req.UpdateDate, &req.FileLoc, &req.Site1, &req.Site2, &req.Failure)
	if err != nil {
		if isNoRows(err) {
			return domain.Request{}, false, nil
		}
		return domain.Request{}, false, fmt.Errorf("store: get request %s: %w", uuid, err)
	}

	req.FinalState = finalstate == 1
	req.PathfindIssue = pathfindissue == 1
	req.RequestType = domain.RequestType(requesttype)
	return req, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
