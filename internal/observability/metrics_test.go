package observability

import (
	"testing"
	"time"

	"github.com/danmuck/supctl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("supd", "GET", "/health", 200, 12*time.Millisecond)
	RecordCtlRequest("SvcStatus", "ok")
	RecordCtlHandshake(3 * time.Millisecond)
	RecordGatewayRequest("SvcStatus", "ok")
	RecordSelfUpdateCheck("current")
	RecordSelfUpdateRestart()
}
