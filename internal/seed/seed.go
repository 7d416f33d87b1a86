// Package seed loads organizational reference data (vehicles, routes, stops,
// guardians, riders) from a YAML fixture into a store. The service itself has
// no CRUD surface for these records.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/store"
)

type Fixture struct {
	Organizations []Organization `yaml:"organizations" validate:"dive"`
}

type Organization struct {
	ID        string     `yaml:"id" validate:"required"`
	Vehicles  []Vehicle  `yaml:"vehicles" validate:"dive"`
	Stops     []Stop     `yaml:"stops" validate:"dive"`
	Routes    []Route    `yaml:"routes" validate:"dive"`
	Guardians []Guardian `yaml:"guardians" validate:"dive"`
}

type Vehicle struct {
	ID       string `yaml:"id" validate:"required"`
	Label    string `yaml:"label" validate:"required"`
	Capacity int    `yaml:"capacity" validate:"gte=0"`
	Status   string `yaml:"status" validate:"omitempty,oneof=active inactive maintenance"`
	Operator string `yaml:"operator"`
}

type Stop struct {
	ID   string  `yaml:"id" validate:"required"`
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `yaml:"lon" validate:"gte=-180,lte=180"`
}

type Route struct {
	ID       string   `yaml:"id" validate:"required"`
	Name     string   `yaml:"name" validate:"required"`
	Stops    []string `yaml:"stops"`
	Vehicles []string `yaml:"vehicles"`
}

type Guardian struct {
	ID     string  `yaml:"id" validate:"required"`
	Name   string  `yaml:"name"`
	Riders []Rider `yaml:"riders" validate:"dive"`
}

type Rider struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name"`
	Stop string `yaml:"stop"`
}

type Counts struct {
	Vehicles  int
	Stops     int
	Routes    int
	Guardians int
	Riders    int
}

func LoadFile(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	if err := validator.New().Struct(fixture); err != nil {
		return Fixture{}, fmt.Errorf("invalid fixture: %w", err)
	}
	return fixture, nil
}

// Apply writes the fixture in dependency order so every link refers to rows
// that already exist.
func Apply(ctx context.Context, w store.ReferenceWriter, fixture Fixture) (Counts, error) {
	var counts Counts
	for _, org := range fixture.Organizations {
		for _, v := range org.Vehicles {
			vehicle := model.Vehicle{
				ID:       v.ID,
				OrgID:    org.ID,
				Label:    v.Label,
				Capacity: v.Capacity,
				Status:   model.VehicleActive,
			}
			if v.Status != "" {
				vehicle.Status = model.VehicleStatus(v.Status)
			}
			if v.Operator != "" {
				operator := v.Operator
				vehicle.OperatorID = &operator
			}
			if err := w.UpsertVehicle(ctx, vehicle); err != nil {
				return counts, fmt.Errorf("vehicle %s: %w", v.ID, err)
			}
			counts.Vehicles++
		}
		for _, s := range org.Stops {
			if err := w.UpsertStop(ctx, model.Stop{ID: s.ID, OrgID: org.ID, Name: s.Name, Latitude: s.Lat, Longitude: s.Lon}); err != nil {
				return counts, fmt.Errorf("stop %s: %w", s.ID, err)
			}
			counts.Stops++
		}
		for _, r := range org.Routes {
			if err := w.UpsertRoute(ctx, model.Route{ID: r.ID, OrgID: org.ID, Name: r.Name}); err != nil {
				return counts, fmt.Errorf("route %s: %w", r.ID, err)
			}
			for _, stopID := range r.Stops {
				if err := w.LinkRouteStop(ctx, r.ID, stopID); err != nil {
					return counts, fmt.Errorf("route %s stop %s: %w", r.ID, stopID, err)
				}
			}
			for _, vehicleID := range r.Vehicles {
				if err := w.LinkRouteVehicle(ctx, r.ID, vehicleID); err != nil {
					return counts, fmt.Errorf("route %s vehicle %s: %w", r.ID, vehicleID, err)
				}
			}
			counts.Routes++
		}
		for _, g := range org.Guardians {
			if err := w.UpsertGuardian(ctx, model.Guardian{ID: g.ID, OrgID: org.ID, Name: g.Name}); err != nil {
				return counts, fmt.Errorf("guardian %s: %w", g.ID, err)
			}
			counts.Guardians++
			for _, r := range g.Riders {
				rider := model.Rider{ID: r.ID, OrgID: org.ID, GuardianID: g.ID, Name: r.Name}
				if r.Stop != "" {
					stopID := r.Stop
					rider.StopID = &stopID
				}
				if err := w.UpsertRider(ctx, rider); err != nil {
					return counts, fmt.Errorf("rider %s: %w", r.ID, err)
				}
				counts.Riders++
			}
		}
	}
	return counts, nil
}
