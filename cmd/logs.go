package cmd

import (
	"fmt"

	"github.com/hpcloud/tail"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var follow bool

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the log file, optionally following new entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Logger().LogFile == "" {
				return fmt.Errorf("logging to a file is disabled (logger.log_file is empty)")
			}
			path, err := homedir.Expand(cfg.Logger().LogFile)
			if err != nil {
				return err
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer t.Cleanup()

			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					// Ctrl+C is how --follow ends.
					_ = t.Stop()
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return t.Wait()
					}
					if line.Err != nil {
						_ = t.Stop()
						return fmt.Errorf("read log file: %w", line.Err)
					}
					fmt.Fprintln(out, line.Text)
				}
			}
		},
	}
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing entries as they are written.")
	return logsCmd
}
