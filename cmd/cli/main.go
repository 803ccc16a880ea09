package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/billfeed/internal/app"
	"github.com/dvloznov/billfeed/internal/config"
	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/ingest"
	"github.com/dvloznov/billfeed/internal/logger"
	"github.com/dvloznov/billfeed/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand creates the root CLI command with all subcommands registered.
func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "billfeed",
		Short: "Bill capture and deduplication pipeline",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "billfeed.yaml", "path to configuration file")

	rootCmd.AddCommand(newSubmitCommand(&configPath))
	rootCmd.AddCommand(newReplayCommand(&configPath))
	rootCmd.AddCommand(newBillsCommand(&configPath))
	rootCmd.AddCommand(newConfirmCommand(&configPath))
	rootCmd.AddCommand(newBooksyncCommand(&configPath))
	rootCmd.AddCommand(newReportCommand(&configPath))

	return rootCmd
}

func buildApp(configPath string) (*app.App, context.Context, error) {
	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("Config not loaded, using defaults")
		cfg = config.Default()
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, ctx, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newSubmitCommand(configPath *string) *cobra.Command {
	var (
		sourceApp  string
		sourceType string
		payload    string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a captured payload through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read payload file: %w", err)
				}
				payload = string(data)
			}

			a, ctx, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, res, err := a.Pipeline.Submit(ctx, ingest.Submission{
				SourceApp:  sourceApp,
				SourceType: sourceType,
				Payload:    payload,
				ReceivedAt: time.Now(),
			})
			if err != nil {
				return err
			}

			return printJSON(map[string]interface{}{
				"bill":  rec,
				"dedup": res,
			})
		},
	}

	cmd.Flags().StringVar(&sourceApp, "app", "", "source application identifier")
	cmd.Flags().StringVar(&sourceType, "type", "", "source type: notification, sms, ocr, apphook or data")
	cmd.Flags().StringVar(&payload, "payload", "", "raw payload text")
	cmd.Flags().StringVar(&file, "file", "", "read the payload from a file instead")
	cmd.MarkFlagRequired("app")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newReplayCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <event.json>",
		Short: "Re-run an archived event through the pipeline",
		Long: "Re-run an archived event through the pipeline. Replayed events keep\n" +
			"their original event id, skip the AI fallback and are not re-archived.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read event file: %w", err)
			}

			var event domain.RawEvent
			if err := json.Unmarshal(data, &event); err != nil {
				return fmt.Errorf("parse event file: %w", err)
			}
			if event.EventID == "" {
				return fmt.Errorf("event file has no event_id")
			}

			a, ctx, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, res, err := a.Pipeline.Process(ctx, event, true)
			if err != nil {
				return err
			}

			return printJSON(map[string]interface{}{
				"bill":  rec,
				"dedup": res,
			})
		},
	}

	return cmd
}

func newBillsCommand(configPath *string) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "bills",
		Short: "List bill records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			bills, err := a.Store.List(ctx, store.BillFilter{State: domain.BillState(state)})
			if err != nil {
				return err
			}
			return printJSON(bills)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state: wait2edit, edited or synced")

	return cmd
}

func newConfirmCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <bill-id>",
		Short: "Confirm a bill awaiting review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid bill id %q", args[0])
			}

			a, ctx, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Control.Confirm(ctx, id, nil)
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}

	return cmd
}

// parseDateRange resolves the report bounds. An empty "to" means today,
// an empty "from" means 30 days before "to".
func parseDateRange(fromStr, toStr string) (from, to time.Time, err error) {
	const layout = "2006-01-02"

	to = time.Now().UTC().Truncate(24 * time.Hour)
	if toStr != "" {
		to, err = time.Parse(layout, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: expected YYYY-MM-DD", toStr)
		}
	}

	from = to.AddDate(0, 0, -30)
	if fromStr != "" {
		from, err = time.Parse(layout, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: expected YYYY-MM-DD", fromStr)
		}
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s", from.Format(layout), to.Format(layout))
	}
	return from, to, nil
}

func newReportCommand(configPath *string) *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "List mirrored bills from the analytics dataset by date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseDateRange(fromStr, toStr)
			if err != nil {
				return err
			}

			a, ctx, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Mirror == nil {
				return fmt.Errorf("bigquery is not configured")
			}

			rows, err := a.Mirror.QueryBillsByDateRange(ctx, from, to)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "start date, YYYY-MM-DD (default 30 days before --to)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date, YYYY-MM-DD (default today)")

	return cmd
}

func newBooksyncCommand(configPath *string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "booksync",
		Short: "Export edited bills to the configured Notion ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Syncer == nil {
				return fmt.Errorf("notion is not configured")
			}

			exported, err := a.Syncer.SyncEdited(ctx, dryRun)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d bills\n", exported)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be exported without writing")

	return cmd
}
