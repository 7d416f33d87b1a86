package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.PositionAccepted()
	m.PositionAccepted()
	m.PositionRejected("invalid_coordinate")
	m.AttendanceMarked("pickup", "present")
	m.ReportGenerated("utilization")

	if got := testutil.ToFloat64(m.positionsAccepted); got != 2 {
		t.Fatalf("expected 2 accepted, got %v", got)
	}
	if got := testutil.ToFloat64(m.positionsRejected.WithLabelValues("invalid_coordinate")); got != 1 {
		t.Fatalf("expected 1 rejected, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"fleetwatch_positions_accepted_total 2",
		`fleetwatch_attendance_marked_total{leg="pickup",status="present"} 1`,
		`fleetwatch_reports_generated_total{kind="utilization"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in exposition", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PositionAccepted()
	m.StorageFailure("insert")
	m.ServiceAuthRejected("/svc/Method", "missing_service_token")
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}
