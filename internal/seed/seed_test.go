package seed

import (
	"context"
	"strings"
	"testing"

	"fleetwatch/tracking/internal/store/memory"
)

func TestDemoFixtureApplies(t *testing.T) {
	fixture, err := Demo()
	if err != nil {
		t.Fatalf("parse demo: %v", err)
	}
	st := memory.New()
	counts, err := Apply(context.Background(), st, fixture)
	if err != nil {
		t.Fatalf("apply demo: %v", err)
	}
	if counts.Vehicles != 4 || counts.Stops != 4 || counts.Routes != 2 || counts.Guardians != 4 || counts.Riders != 4 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	vehicle, err := st.GetVehicle(context.Background(), DemoVehicle3)
	if err != nil {
		t.Fatalf("get vehicle: %v", err)
	}
	if vehicle.Status != "maintenance" || vehicle.OperatorID != nil {
		t.Fatalf("unexpected vehicle %+v", vehicle)
	}
	rider, err := st.GetRider(context.Background(), DemoRiderNoStop)
	if err != nil {
		t.Fatalf("get rider: %v", err)
	}
	if rider.StopID != nil {
		t.Fatalf("expected rider without stop")
	}
}

func TestParseRejectsInvalidStatus(t *testing.T) {
	doc := `
organizations:
  - id: org
    vehicles:
      - id: v1
        label: Bus
        status: parked
`
	if _, err := Parse([]byte(doc)); err == nil || !strings.Contains(err.Error(), "invalid fixture") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyFailsOnDanglingLink(t *testing.T) {
	doc := `
organizations:
  - id: org
    routes:
      - id: r1
        name: Loop
        stops: [missing]
`
	fixture, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Apply(context.Background(), memory.New(), fixture); err == nil {
		t.Fatalf("expected dangling stop link to fail")
	}
}
