package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if jobsSubmittedTotal == nil || fetchDurationSeconds == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	IncJobSubmitted("inventory")
	if val := testutil.ToFloat64(jobsSubmittedTotal.WithLabelValues("inventory")); val != 1 {
		t.Errorf("Expected jobsSubmittedTotal{inventory} to be 1, got %f", val)
	}

	ObserveFetch("inventory", "content", 120*time.Millisecond)
	if val := testutil.CollectAndCount(fetchDurationSeconds); val <= 0 {
		t.Errorf("Expected fetchDurationSeconds to be observed, got %d", val)
	}

	SetJobsInFlight(2)
	if val := testutil.ToFloat64(jobsInflight); val != 2 {
		t.Errorf("Expected jobsInflight to be 2, got %f", val)
	}

	SetSnapshot(7, 5, 1, 2)
	if val := testutil.ToFloat64(snapshotVersion); val != 7 {
		t.Errorf("Expected snapshotVersion to be 7, got %f", val)
	}
	if val := testutil.ToFloat64(snapshotListings.WithLabelValues("ended")); val != 2 {
		t.Errorf("Expected snapshotListings{ended} to be 2, got %f", val)
	}
}
