package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOperationIncrementsCounters(t *testing.T) {
	RecordOperation("backup", "success", 1.5)
	got := testutil.ToFloat64(OperationsTotal.WithLabelValues("backup", "success"))
	if got < 1 {
		t.Fatalf("expected at least 1 recorded operation, got %v", got)
	}
}

func TestRecordPageChecksumMismatchesSkipsZero(t *testing.T) {
	before := testutil.ToFloat64(PageChecksumMismatches.WithLabelValues("zero-test-stanza"))
	RecordPageChecksumMismatches("zero-test-stanza", 0)
	after := testutil.ToFloat64(PageChecksumMismatches.WithLabelValues("zero-test-stanza"))
	if after != before {
		t.Fatalf("expected no change recording 0 mismatches, before=%v after=%v", before, after)
	}
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth("pgbr:jobs", 7)
	got := testutil.ToFloat64(QueueDepth.WithLabelValues("pgbr:jobs"))
	if got != 7 {
		t.Fatalf("expected queue depth 7, got %v", got)
	}
}
