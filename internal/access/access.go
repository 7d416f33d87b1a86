// Package access maps a caller to the set of vehicles (and riders) it may see.
// Every vehicle- or rider-scoped operation in the service consults it first.
package access

import (
	"context"
	"sort"

	"fleetwatch/tracking/internal/apperr"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

// Caller is the authenticated identity an operation runs on behalf of. It is
// always passed explicitly.
type Caller struct {
	ID    string
	Role  model.Role
	OrgID string
}

// Scope is an immutable set of ids.
type Scope struct {
	ids map[string]struct{}
}

func NewScope(ids ...string) Scope {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Scope{ids: set}
}

func (s Scope) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s Scope) Len() int {
	return len(s.ids)
}

func (s Scope) Empty() bool {
	return len(s.ids) == 0
}

// IDs returns the members sorted, never nil.
func (s Scope) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type strategy func(ctx context.Context, caller Caller) ([]string, error)

type Resolver struct {
	ref      store.Reference
	vehicles map[model.Role]strategy
	riders   map[model.Role]strategy
}

func NewResolver(ref store.Reference) *Resolver {
	r := &Resolver{ref: ref}
	r.vehicles = map[model.Role]strategy{
		model.RoleOperator: r.operatorVehicles,
		model.RoleDriver:   r.driverVehicles,
		model.RoleGuardian: r.guardianVehicles,
	}
	r.riders = map[model.Role]strategy{
		model.RoleOperator: r.operatorRiders,
		model.RoleDriver:   r.driverRiders,
		model.RoleGuardian: r.guardianRiders,
	}
	return r
}

// Resolve returns the vehicle ids visible to caller. Roles without a strategy
// resolve to the empty scope.
func (r *Resolver) Resolve(ctx context.Context, caller Caller) (Scope, error) {
	return r.run(ctx, r.vehicles, caller, "resolve vehicle scope")
}

// RiderScope returns the rider ids whose attendance caller may read.
func (r *Resolver) RiderScope(ctx context.Context, caller Caller) (Scope, error) {
	return r.run(ctx, r.riders, caller, "resolve rider scope")
}

func (r *Resolver) CanObserve(ctx context.Context, caller Caller, vehicleID string) (bool, error) {
	scope, err := r.Resolve(ctx, caller)
	if err != nil {
		return false, err
	}
	return scope.Contains(vehicleID), nil
}

// CanOperate is CanObserve restricted to roles that act on vehicles.
func (r *Resolver) CanOperate(ctx context.Context, caller Caller, vehicleID string) (bool, error) {
	if caller.Role != model.RoleDriver && caller.Role != model.RoleOperator {
		return false, nil
	}
	return r.CanObserve(ctx, caller, vehicleID)
}

// CanReachGuardian reports whether any rider of guardianID is inside the
// caller's rider scope. A guardian that does not exist has no riders.
func (r *Resolver) CanReachGuardian(ctx context.Context, caller Caller, guardianID string) (bool, error) {
	scope, err := r.RiderScope(ctx, caller)
	if err != nil || scope.Empty() {
		return false, err
	}
	riders, err := r.ref.ListRidersByGuardian(ctx, guardianID)
	if err != nil {
		return false, apperr.Storage("resolve guardian riders", err)
	}
	for _, rider := range riders {
		if scope.Contains(rider.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) run(ctx context.Context, table map[model.Role]strategy, caller Caller, op string) (Scope, error) {
	resolve, ok := table[caller.Role]
	if !ok || caller.ID == "" {
		return NewScope(), nil
	}
	ids, err := resolve(ctx, caller)
	if err != nil {
		return Scope{}, apperr.Storage(op, err)
	}
	return NewScope(ids...), nil
}

func (r *Resolver) operatorVehicles(ctx context.Context, caller Caller) ([]string, error) {
	if caller.OrgID == "" {
		return nil, nil
	}
	return r.ref.VehicleIDsByOrg(ctx, caller.OrgID)
}

func (r *Resolver) driverVehicles(ctx context.Context, caller Caller) ([]string, error) {
	return r.ref.VehicleIDsByOperator(ctx, caller.ID)
}

// guardianVehicles walks guardian -> riders -> stops -> routes -> vehicles.
func (r *Resolver) guardianVehicles(ctx context.Context, caller Caller) ([]string, error) {
	riders, err := r.ref.ListRidersByGuardian(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	stopIDs := riderStops(riders)
	if len(stopIDs) == 0 {
		return nil, nil
	}
	routeStops, err := r.ref.RouteStopsByStops(ctx, stopIDs)
	if err != nil {
		return nil, err
	}
	routeIDs := make([]string, 0, len(routeStops))
	for _, link := range routeStops {
		routeIDs = append(routeIDs, link.RouteID)
	}
	return r.vehiclesOnRoutes(ctx, routeIDs)
}

func (r *Resolver) vehiclesOnRoutes(ctx context.Context, routeIDs []string) ([]string, error) {
	if len(routeIDs) == 0 {
		return nil, nil
	}
	links, err := r.ref.RouteVehiclesByRoutes(ctx, routeIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.VehicleID)
	}
	return ids, nil
}

func (r *Resolver) operatorRiders(ctx context.Context, caller Caller) ([]string, error) {
	if caller.OrgID == "" {
		return nil, nil
	}
	riders, err := r.ref.ListRidersByOrg(ctx, caller.OrgID)
	if err != nil {
		return nil, err
	}
	return riderIDs(riders), nil
}

func (r *Resolver) guardianRiders(ctx context.Context, caller Caller) ([]string, error) {
	riders, err := r.ref.ListRidersByGuardian(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	return riderIDs(riders), nil
}

// driverRiders are the riders assigned to a stop on any route the driver's
// vehicle serves.
func (r *Resolver) driverRiders(ctx context.Context, caller Caller) ([]string, error) {
	vehicleIDs, err := r.ref.VehicleIDsByOperator(ctx, caller.ID)
	if err != nil || len(vehicleIDs) == 0 {
		return nil, err
	}
	routeVehicles, err := r.ref.RouteVehiclesByVehicles(ctx, vehicleIDs)
	if err != nil || len(routeVehicles) == 0 {
		return nil, err
	}
	routeIDs := make([]string, 0, len(routeVehicles))
	for _, link := range routeVehicles {
		routeIDs = append(routeIDs, link.RouteID)
	}
	routeStops, err := r.ref.RouteStopsByRoutes(ctx, routeIDs)
	if err != nil || len(routeStops) == 0 {
		return nil, err
	}
	stopIDs := make([]string, 0, len(routeStops))
	for _, link := range routeStops {
		stopIDs = append(stopIDs, link.StopID)
	}
	riders, err := r.ref.ListRidersByStops(ctx, stopIDs)
	if err != nil {
		return nil, err
	}
	return riderIDs(riders), nil
}

func riderStops(riders []model.Rider) []string {
	stops := make([]string, 0, len(riders))
	for _, rider := range riders {
		if rider.StopID != nil {
			stops = append(stops, *rider.StopID)
		}
	}
	return stops
}

func riderIDs(riders []model.Rider) []string {
	ids := make([]string, 0, len(riders))
	for _, rider := range riders {
		ids = append(ids, rider.ID)
	}
	return ids
}
