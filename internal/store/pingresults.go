package store

import (
	"context"
	"fmt"

	"github.com/oriys/pairtester/internal/domain"
)

// WritePingResult inserts row if no row matches its natural key (every
// field except audit timestamps), mirroring dbrecorder.py::writepingresults.
func (s *Store) WritePingResult(ctx context.Context, row domain.PingResult) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM pingresults
			WHERE uuid = $1 AND site1 = $2 AND site2 = $3 AND action = $4 AND port1 = $5 AND port2 = $6
			  AND ipto = $7 AND ipfrom = $8 AND vlanfrom = $9 AND vlanto = $10
			  AND failed = $11 AND transmitted = $12 AND received = $13 AND packetloss = $14
			  AND rttmin = $15 AND rttavg = $16 AND rttmax = $17 AND rttmdev = $18
		)
	`, row.UUID, row.Site1, row.Site2, string(row.Action), row.Port1, row.Port2,
		row.IPTo, row.IPFrom, row.VlanFrom, row.VlanTo,
		boolToInt(row.Failed), row.Transmitted, row.Received, row.PacketLoss,
		row.RTTMin, row.RTTAvg, row.RTTMax, row.RTTMdev).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check pingresult %s: %w", row.UUID, err)
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pingresults (uuid, site1, site2, action, port1, port2, ipto, ipfrom, vlanto, vlanfrom,
			insertdate, updatedate, failed, transmitted, received, packetloss, rttmin, rttavg, rttmax, rttmdev)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now(), $11, $12, $13, $14, $15, $16, $17, $18)
	`, row.UUID, row.Site1, row.Site2, string(row.Action), row.Port1, row.Port2,
		row.IPTo, row.IPFrom, row.VlanTo, row.VlanFrom,
		boolToInt(row.Failed), row.Transmitted, row.Received, row.PacketLoss,
		row.RTTMin, row.RTTAvg, row.RTTMax, row.RTTMdev)
	if err != nil {
		return fmt.Errorf("store: insert pingresult %s: %w", row.UUID, err)
	}
	return nil
}
