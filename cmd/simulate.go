// File: cmd/simulate.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/auth"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/delivery"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/messenger"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/navigator"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/observability"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/orchestrator"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/store"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [request.json]",
	Short: "Run bank simulations for the targets described in a request file.",
	Long: `Reads a simulation request (JSON) from the given file, or from stdin
when the argument is "-" or absent, runs one browser automation per bank
target and forwards every settled payload to the backend.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	req, err := readRequest(args)
	if err != nil {
		return err
	}
	if len(req.Data.Targets) == 0 {
		return fmt.Errorf("the request carries no targets")
	}

	st, err := store.Open(appConfig.Store.Path, logger)
	if err != nil {
		return err
	}

	manager := browser.NewManager(appConfig, logger)
	defer manager.Shutdown()

	bus := messenger.NewBus(appConfig.Messenger, logger)
	authSvc := auth.NewService(appConfig.Delivery, devMode, st, logger)
	client := delivery.NewClient(appConfig.Delivery, logger)
	registry := navigator.NewRegistry(appConfig, logger)
	engine := orchestrator.NewBrowserEngine(manager, registry)

	orch := orchestrator.New(appConfig, engine, bus, client, authSvc, st, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	orch.Start(ctx)

	resp := orch.RunBatch(ctx, req)

	bus.Close()
	cancel()
	orch.Stop()

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if resp.Status == schemas.BatchError {
		logger.Warn("Every target failed.", zap.Int("count", resp.Count))
		return fmt.Errorf("simulation batch failed")
	}
	return nil
}

// readRequest loads the request envelope, accepting either the full
// envelope or a bare target list.
func readRequest(args []string) (schemas.SimulationRequest, error) {
	var req schemas.SimulationRequest

	var src io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return req, err
		}
		defer f.Close()
		src = f
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return req, err
	}

	if err := json.Unmarshal(raw, &req); err == nil && len(req.Data.Targets) > 0 {
		return req, nil
	}

	var targets []schemas.SimulationInput
	if err := json.Unmarshal(raw, &targets); err != nil {
		return req, fmt.Errorf("unrecognized request shape: %w", err)
	}
	req.Action = schemas.ActionStartSimulation
	req.Data.Targets = targets
	return req, nil
}
