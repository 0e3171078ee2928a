// File: cmd/login.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/auth"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/browser"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/observability"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/store"
)

var loginWait time.Duration

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open the backoffice in a visible browser and capture the session.",
	Long: `Opens the backend site in a non-headless browser window. Log in
normally; the session cookies are captured and persisted as soon as the
login completes, and later reused by the simulate command.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().DurationVar(&loginWait, "wait", 5*time.Minute, "how long to wait for the login to complete")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	st, err := store.Open(appConfig.Store.Path, logger)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(appConfig.Delivery, devMode, st, logger)

	// The login window must be visible regardless of the configured mode.
	loginCfg := *appConfig
	loginCfg.Browser.Headless = false

	manager := browser.NewManager(&loginCfg, logger)
	defer manager.Shutdown()

	tab, err := manager.NewTab()
	if err != nil {
		return err
	}
	defer tab.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), loginWait)
	defer cancel()

	if err := tab.Navigate(ctx, appConfig.Delivery.BaseURL); err != nil {
		return fmt.Errorf("opening the backoffice: %w", err)
	}
	logger.Info("Waiting for login to complete.", zap.Duration("wait", loginWait))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("login was not completed within %s", loginWait)
		case <-ticker.C:
			if err := authSvc.CaptureFromTab(ctx, tab); err != nil {
				logger.Debug("Session not ready yet.", zap.Error(err))
				continue
			}
			logger.Info("Session captured and persisted.")
			fmt.Fprintln(cmd.OutOrStdout(), "Login captured.")
			return nil
		}
	}
}
