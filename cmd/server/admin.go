package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"fleetwatch/tracking/internal/access"
	"fleetwatch/tracking/internal/config"
	"fleetwatch/tracking/internal/db"
	trackinggrpc "fleetwatch/tracking/internal/grpc"
	"fleetwatch/tracking/internal/model"
	"fleetwatch/tracking/internal/seed"
)

func openStore(ctx context.Context) (*db.Store, func(), error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db connection failed: %w", err)
	}
	return db.NewStore(pool), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("schema %s\n", color.New(color.FgGreen).Sprint("up to date"))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var (
		file    string
		demo    bool
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load organizational reference data from a YAML fixture",
		Long: `Load vehicles, stops, routes, guardians and riders from a YAML fixture.
Records are upserted, so a fixture can be applied repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				fixture seed.Fixture
				err     error
			)
			switch {
			case demo && file != "":
				return errors.New("use either --file or --demo")
			case demo:
				fixture, err = seed.Demo()
			case file != "":
				fixture, err = seed.LoadFile(file)
			default:
				return errors.New("--file or --demo required")
			}
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()
			if migrate {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
			}

			var counts seed.Counts
			err = store.WithTx(ctx, func(tx *db.Store) error {
				var applyErr error
				counts, applyErr = seed.Apply(ctx, tx, fixture)
				return applyErr
			})
			if err != nil {
				fmt.Printf("seed %s\n", color.New(color.FgRed).Sprint("FAILED"))
				return err
			}
			ok := color.New(color.FgGreen).Sprint("✓")
			fmt.Printf("%s vehicles:  %d\n", ok, counts.Vehicles)
			fmt.Printf("%s stops:     %d\n", ok, counts.Stops)
			fmt.Printf("%s routes:    %d\n", ok, counts.Routes)
			fmt.Printf("%s guardians: %d\n", ok, counts.Guardians)
			fmt.Printf("%s riders:    %d\n", ok, counts.Riders)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a YAML fixture")
	cmd.Flags().BoolVar(&demo, "demo", false, "load the built-in demo fixture")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema first")
	return cmd
}

func scopeCmd() *cobra.Command {
	var (
		caller  access.Caller
		role    string
		current bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Ask a running service which vehicles a caller can see",
		Long: `Query the internal gRPC API at GRPC_ADDR with SERVICE_AUTH_TOKEN.
Prints the caller's vehicle and rider scope, or with --current the
current positions of the active vehicles in scope.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			caller.Role = model.Role(role)

			conn, err := trackinggrpc.Dial(cmd.Context(), cfg.GRPCAddr, timeout)
			if err != nil {
				return fmt.Errorf("grpc dial failed: %w", err)
			}
			defer conn.Close()
			client := trackinggrpc.NewClient(conn, cfg.ServiceAuthToken)

			call := client.ResolveScope
			if current {
				call = client.CurrentPositions
			}
			resp, err := call(cmd.Context(), caller)
			if err != nil {
				return err
			}
			out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&caller.ID, "caller", "", "caller id")
	cmd.Flags().StringVar(&role, "role", "", "caller role (operator, driver, guardian)")
	cmd.Flags().StringVar(&caller.OrgID, "org", "", "caller organization id")
	cmd.Flags().BoolVar(&current, "current", false, "print current positions instead of the scope")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial timeout")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
