package observability

import (
	"testing"
	"time"

	"github.com/lastping/lastpingd/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("lastping-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordEngineOperation("lastping-a", "ping", "ok")
	RecordEngineOperation("lastping-a", "claim", "not_expired")
	SetRegistryGauges("lastping-a", 3, 1)
}
