// Package recorder parses finished pair artifacts and writes their rows to
// the backing store, per spec.md §4.7. It is grounded on
// original_source/dbrecorder.py's DBRecorder/FileParser, expressed here as
// a free-standing component composed with internal/archiver rather than
// bound onto one parser object via inheritance (spec.md §9).
package recorder

import (
	"context"

	"github.com/oriys/pairtester/internal/domain"
)

// Store is the persistence seam the recorder needs. A narrow interface
// (rather than *store.Store directly) keeps the recorder testable without
// a Postgres instance, matching the orchestrator.Client/edgeagent.Client/
// archiver.FileLocUpdater opaque-collaborator pattern used throughout this
// codebase.
type Store interface {
	WriteRequest(ctx context.Context, req domain.Request) error
	WriteAction(ctx context.Context, row domain.ActionRow) error
	WriteVerification(ctx context.Context, row domain.Verification) error
	WriteRequestState(ctx context.Context, row domain.RequestState) error
	WritePingResult(ctx context.Context, row domain.PingResult) error
	WriteRunnerInfo(ctx context.Context, info domain.RunnerInfo) error
	WriteLockedRequest(ctx context.Context, req domain.Request) error
	ListLockedRequests(ctx context.Context) ([]string, error)
	DeleteLockedRequest(ctx context.Context, uuid string) error
}
