package stateorder

import (
	"testing"
	"time"

	"github.com/oriys/pairtester/internal/domain"
)

func TestSeedMonotonic(t *testing.T) {
	rows := Seed()
	if len(rows) == 0 {
		t.Fatal("expected non-empty seed")
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].OrderID <= rows[i-1].OrderID {
			t.Fatalf("orderid not monotonic at %d: %d <= %d", i, rows[i].OrderID, rows[i-1].OrderID)
		}
	}
}

func TestAnalyzeHappyPathCreate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	observed := []Observed{
		{State: "CREATE", ConfigState: domain.ConfigStateCreate, Action: domain.ActionCreate, EnterTime: base},
		{State: "CREATE - PENDING", ConfigState: domain.ConfigStatePending, Action: domain.ActionCreate, EnterTime: base.Add(5 * time.Second)},
		{State: "CREATE - READY", ConfigState: domain.ConfigStateStable, Action: domain.ActionCreate, EnterTime: base.Add(20 * time.Second)},
	}

	rows := Analyze(observed)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	for i, r := range rows {
		if r.TotalTime < 0 {
			t.Fatalf("row %d has negative totaltime", i)
		}
		if r.SinceStart < 0 {
			t.Fatalf("row %d has negative sincestart", i)
		}
	}

	if rows[0].TotalTime != 5 {
		t.Fatalf("expected first row dwell 5s, got %d", rows[0].TotalTime)
	}
	if rows[1].TotalTime != 15 {
		t.Fatalf("expected second row dwell 15s, got %d", rows[1].TotalTime)
	}
	if rows[2].SinceStart != 20 {
		t.Fatalf("expected final sincestart 20s, got %d", rows[2].SinceStart)
	}
}

func TestAnalyzeUnmatchedAppendedWithZeroDwell(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	observed := []Observed{
		{State: "WEIRD - STATE", ConfigState: domain.ConfigStateUnknown, Action: domain.ActionCreate, EnterTime: base},
	}

	rows := Analyze(observed)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].TotalTime != 0 {
		t.Fatalf("expected zero dwell for unmatched tuple, got %d", rows[0].TotalTime)
	}
}

func TestSinceStartNonDecreasingInCanonicalOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	observed := []Observed{
		{State: "CREATE", ConfigState: domain.ConfigStateCreate, Action: domain.ActionCancel, EnterTime: base},
		{State: "CANCEL - PENDING", ConfigState: domain.ConfigStatePending, Action: domain.ActionCancel, EnterTime: base.Add(3 * time.Second)},
		{State: "CANCEL - READY", ConfigState: domain.ConfigStateStable, Action: domain.ActionCancel, EnterTime: base.Add(9 * time.Second)},
	}

	rows := Analyze(observed)
	for i := 1; i < len(rows); i++ {
		if rows[i].SinceStart < rows[i-1].SinceStart {
			t.Fatalf("sincestart decreased at row %d", i)
		}
	}
}
