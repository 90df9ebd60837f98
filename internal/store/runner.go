package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/pairtester/internal/domain"
)

// WriteRunnerInfo upserts the singleton heartbeat row: if an identical row
// already exists it is left untouched, if a row exists with different
// values it is updated in place, and if no row exists one is inserted.
// Mirrors dbrecorder.py::writerunnerinfo.
func (s *Store) WriteRunnerInfo(ctx context.Context, info domain.RunnerInfo) error {
	now := time.Now().UTC()

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM runnerinfo
			WHERE alive = $1 AND totalworkers = $2 AND totalqueue = $3 AND remainingqueue = $4
			  AND starttime = $5 AND nextrun = $6 AND lockedrequests = $7
		)
	`, info.Alive, info.TotalWorkers, info.TotalQueue, info.RemainingQueue, info.StartTime, info.NextRun, info.LockedRequests).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check runnerinfo: %w", err)
	}
	if exists {
		return nil
	}

	var id int64
	err = s.pool.QueryRow(ctx, `SELECT id FROM runnerinfo ORDER BY id LIMIT 1`).Scan(&id)
	switch {
	case isNoRows(err):
		_, err = s.pool.Exec(ctx, `
			INSERT INTO runnerinfo (alive, totalworkers, totalqueue, remainingqueue, lockedrequests, updatedate, insertdate, starttime, nextrun)
			VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8)
		`, info.Alive, info.TotalWorkers, info.TotalQueue, info.RemainingQueue, info.LockedRequests, now, info.StartTime, info.NextRun)
		if err != nil {
			return fmt.Errorf("store: insert runnerinfo: %w", err)
		}
	case err != nil:
		return fmt.Errorf("store: find runnerinfo row: %w", err)
	default:
		_, err = s.pool.Exec(ctx, `
			UPDATE runnerinfo SET alive = $1, totalworkers = $2, totalqueue = $3, remainingqueue = $4,
				lockedrequests = $5, updatedate = $6, starttime = $7, nextrun = $8
			WHERE id = $9
		`, info.Alive, info.TotalWorkers, info.TotalQueue, info.RemainingQueue, info.LockedRequests, now, info.StartTime, info.NextRun, id)
		if err != nil {
			return fmt.Errorf("store: update runnerinfo: %w", err)
		}
	}
	return nil
}

// WriteLockedRequest inserts req's snapshot if no locked row with the same
// uuid exists yet, mirroring dbrecorder.py::writelockedinfo.
func (s *Store) WriteLockedRequest(ctx context.Context, req domain.Request) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM lockedrequests WHERE uuid = $1)`, req.UUID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check lockedrequest %s: %w", req.UUID, err)
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO lockedrequests (uuid, port1, port2, finalstate, pathfindissue, vlan, requesttype, insertdate, updatedate, fileloc, site1, site2, failure)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, req.UUID, req.Port1, req.Port2, boolToInt(req.FinalState), boolToInt(req.PathfindIssue),
		req.Vlan, string(req.RequestType), req.InsertDate, req.UpdateDate, req.FileLoc, req.Site1, req.Site2, req.Failure)
	if err != nil {
		return fmt.Errorf("store: insert lockedrequest %s: %w", req.UUID, err)
	}
	return nil
}

// ListLockedRequests returns up to 1000 locked-request uuids, mirroring
// dbrecorder.py::getlockedinfo's limit.
func (s *Store) ListLockedRequests(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT uuid FROM lockedrequests LIMIT 1000`)
	if err != nil {
		return nil, fmt.Errorf("store: list lockedrequests: %w", err)
	}
	defer rows.Close()

	var uuids []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, fmt.Errorf("store: scan lockedrequest: %w", err)
		}
		uuids = append(uuids, uuid)
	}
	return uuids, rows.Err()
}

// DeleteLockedRequest removes the locked-request row for uuid if present,
// mirroring dbrecorder.py::deletelockedinfo.
func (s *Store) DeleteLockedRequest(ctx context.Context, uuid string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM lockedrequests WHERE uuid = $1`, uuid)
	if err != nil {
		return fmt.Errorf("store: delete lockedrequest %s: %w", uuid, err)
	}
	return nil
}
