package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/metrics"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/position"
	"fleetwatch/tracking/internal/seed"
	"fleetwatch/tracking/internal/store/memory"
)

const testServiceToken = "service-secret"

func newTestConn(t *testing.T) *grpc.ClientConn {
	conn, _ := newTestConnWithMetrics(t)
	return conn
}

func newTestConnWithMetrics(t *testing.T) (*grpc.ClientConn, *metrics.Metrics) {
	t.Helper()
	fixture, err := seed.Demo()
	if err != nil {
		t.Fatalf("demo fixture: %v", err)
	}
	st := memory.New()
	if _, err := seed.Apply(context.Background(), st, fixture); err != nil {
		t.Fatalf("apply fixture: %v", err)
	}
	resolver := access.NewResolver(st)
	positions := position.NewService(st, resolver)
	driver := access.Caller{ID: seed.DemoDriver1, Role: model.RoleDriver, OrgID: seed.DemoOrg}
	if _, err := positions.Report(context.Background(), driver, position.Report{VehicleID: seed.DemoVehicle1, Latitude: 33.9, Longitude: 35.5, Speed: 10}); err != nil {
		t.Fatalf("report: %v", err)
	}

	m := metrics.New()
	interceptor, err := NewServiceAuthUnaryInterceptor(testServiceToken, m, nil)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	RegisterTrackingQueryServer(server, NewTrackingQueryServer(resolver, positions, nil))
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, m
}

func TestServiceTokenRequired(t *testing.T) {
	conn, m := newTestConnWithMetrics(t)
	caller := access.Caller{ID: seed.DemoOperator, Role: model.RoleOperator, OrgID: seed.DemoOrg}

	_, err := NewClient(conn, "").ResolveScope(context.Background(), caller)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	_, err = NewClient(conn, "wrong").ResolveScope(context.Background(), caller)
	if status.Code(err) != codes.PermissionDenied || status.Convert(err).Message() != "invalid_service_token" {
		t.Fatalf("expected permission denied, got %v", err)
	}
	_, err = NewClient(conn, "wrong").CurrentPositions(context.Background(), caller)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := NewClient(conn, testServiceToken).ResolveScope(context.Background(), caller); err != nil {
		t.Fatalf("valid token refused: %v", err)
	}

	// one series per (method, reason) pair refused above
	n, err := testutil.GatherAndCount(m.Registry(), "fleetwatch_grpc_auth_rejected_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rejection series, got %d", n)
	}
}

func TestNewServiceAuthInterceptorRequiresToken(t *testing.T) {
	for _, token := range []string{"", "   "} {
		if _, err := NewServiceAuthUnaryInterceptor(token, nil, nil); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}

func TestResolveScope(t *testing.T) {
	client := NewClient(newTestConn(t), testServiceToken)

	resp, err := client.ResolveScope(context.Background(), access.Caller{ID: seed.DemoGuardian2, Role: model.RoleGuardian})
	if err != nil {
		t.Fatalf("resolve scope: %v", err)
	}
	vehicles := resp.GetFields()["vehicleIds"].GetListValue().GetValues()
	if len(vehicles) != 1 || vehicles[0].GetStringValue() != seed.DemoVehicle1 {
		t.Fatalf("unexpected guardian scope %v", vehicles)
	}
	riders := resp.GetFields()["riderIds"].GetListValue().GetValues()
	if len(riders) != 1 || riders[0].GetStringValue() != seed.DemoRiderNorth2 {
		t.Fatalf("unexpected rider scope %v", riders)
	}

	_, err = client.ResolveScope(context.Background(), access.Caller{Role: model.RoleOperator})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestCurrentPositions(t *testing.T) {
	client := NewClient(newTestConn(t), testServiceToken)

	resp, err := client.CurrentPositions(context.Background(), access.Caller{ID: seed.DemoDriver1, Role: model.RoleDriver, OrgID: seed.DemoOrg})
	if err != nil {
		t.Fatalf("current positions: %v", err)
	}
	vehicles := resp.GetFields()["vehicles"].GetListValue().GetValues()
	if len(vehicles) != 1 {
		t.Fatalf("expected the driver's vehicle only, got %d", len(vehicles))
	}
	fields := vehicles[0].GetStructValue().GetFields()
	if fields["id"].GetStringValue() != seed.DemoVehicle1 {
		t.Fatalf("unexpected vehicle %v", fields["id"])
	}
	pos := fields["position"].GetStructValue().GetFields()
	if pos["latitude"].GetNumberValue() != 33.9 {
		t.Fatalf("unexpected position %v", pos)
	}

	resp, err = client.CurrentPositions(context.Background(), access.Caller{ID: "x", Role: model.Role("visitor")})
	if err != nil {
		t.Fatalf("current positions: %v", err)
	}
	if n := len(resp.GetFields()["vehicles"].GetListValue().GetValues()); n != 0 {
		t.Fatalf("unknown role must see nothing, got %d", n)
	}
}
