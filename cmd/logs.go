// File: cmd/logs.go
package cmd

import (
	"fmt"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/observability"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/store"
)

var (
	logsFollow  bool
	logsHistory bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the application log file, or the persisted run history.",
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep the file open and stream new lines")
	logsCmd.Flags().BoolVar(&logsHistory, "history", false, "print the persisted run log history instead of the log file")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsHistory {
		return printHistory(cmd)
	}

	t, err := tail.TailFile(appConfig.Logger.LogFile, tail.Config{
		Follow:    logsFollow,
		ReOpen:    logsFollow,
		MustExist: true,
	})
	if err != nil {
		return fmt.Errorf("opening log file %q: %w", appConfig.Logger.LogFile, err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-cmd.Context().Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line.Text)
		}
	}
}

func printHistory(cmd *cobra.Command) error {
	st, err := store.Open(appConfig.Store.Path, observability.GetLogger())
	if err != nil {
		return err
	}
	for _, rec := range st.LogHistory() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Source, rec.Message)
	}
	return nil
}
