package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// requireDSN skips the test unless a real Postgres is configured via
// QSCHED_TEST_POSTGRES_DSN, matching the optional-dependency nature of
// this sink (spec: audit is an optional site add-on, never required for
// a cycle to complete).
func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("QSCHED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QSCHED_TEST_POSTGRES_DSN not set; skipping audit integration test")
	}
	return dsn
}

func TestRecordAndSummarizeCycle(t *testing.T) {
	dsn := requireDSN(t)
	sink, err := Open(dsn, zerolog.Nop())
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	cycleID := "test-cycle-1"
	require.NoError(t, sink.RecordAll(ctx, []Decision{
		{CycleID: cycleID, Time: time.Now(), ObjectID: "1.server", ObjectKind: "job", Outcome: "ran"},
		{CycleID: cycleID, Time: time.Now(), ObjectID: "2.server", ObjectKind: "job", Outcome: "can_not_run", Reason: "INSUFFICIENT_RESOURCE"},
	}))

	summary, err := sink.SummarizeCycle(ctx, cycleID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Counts["ran"])
	require.Equal(t, 1, summary.Counts["can_not_run"])
}
