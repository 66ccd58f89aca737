package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nexxia-ai/aigentic/ai/openai"
	"github.com/spf13/cobra"

	"github.com/mvaldes-dt/schemaflow/internal/engine"
	"github.com/mvaldes-dt/schemaflow/internal/inference"
	"github.com/mvaldes-dt/schemaflow/internal/logging"
	"github.com/mvaldes-dt/schemaflow/internal/scheduler"
	"github.com/mvaldes-dt/schemaflow/internal/source"
	"github.com/mvaldes-dt/schemaflow/internal/store"
	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schemaflow",
		Short:         "Data onboarding workflow engine",
		Long:          "Profiles raw data, derives a data dictionary, and generates field mappings to a target schema.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newCancelCmd(),
		newResumeCmd(),
		newJobsCmd(),
		newSchedulerCmd(),
	)
	return root
}

// app bundles the wired collaborators behind the commands.
type app struct {
	store        *store.LibSQLStore
	orchestrator *engine.Orchestrator
	logger       *slog.Logger
	config       Config
}

func newApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	handler := logging.NewCorrelationHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger := slog.New(handler)

	if err := os.MkdirAll(schemaflowDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.StageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	catalog, err := source.NewLocalCatalog(cfg.StageDir)
	if err != nil {
		st.Close()
		return nil, err
	}

	model := openai.NewModel(cfg.OpenAIModel, cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		model = openai.NewModel(cfg.OpenAIModel, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
	client := inference.NewBreakerClient(
		inference.NewModelClient(model), inference.DefaultBreakerConfig())

	engineCfg := engine.Config{
		Retry: engine.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.duration(cfg.RetryBaseDelay, 500*time.Millisecond),
			MaxDelay:    cfg.duration(cfg.RetryMaxDelay, 10*time.Second),
		},
		StageTimeout:    cfg.duration(cfg.StageTimeout, 2*time.Minute),
		SampleSize:      cfg.SampleSize,
		ConfidenceFloor: cfg.ConfidenceFloor,
		SourceSystem:    cfg.SourceSystem,
		CompletionModel: cfg.CompletionModel,
	}

	orch, err := engine.NewOrchestrator(st, client, catalog, logger, engineCfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{store: st, orchestrator: orch, logger: logger, config: cfg}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

func newRunCmd() *cobra.Command {
	var (
		targetTable string
		wfType      string
		token       string
		dictID      string
	)
	cmd := &cobra.Command{
		Use:   "run <sourceRef> <targetSchema>",
		Short: "Run an onboarding workflow to completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.orchestrator.StartWorkflow(cmd.Context(), engine.StartRequest{
				SourceRef:          args[0],
				TargetSchema:       args[1],
				TargetTable:        targetTable,
				Type:               schema.WorkflowType(wfType),
				IdempotencyToken:   token,
				DictionaryResultID: dictID,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&targetTable, "target-table", "", "target table to map onto")
	cmd.Flags().StringVar(&wfType, "type", string(schema.WorkflowFullOnboarding), "workflow type (FULL_ONBOARDING, PROFILING_ONLY, MAPPING_ONLY)")
	cmd.Flags().StringVar(&token, "idempotency-token", "", "dedupe token; reuse returns the original run")
	cmd.Flags().StringVar(&dictID, "dictionary-result", "", "dictionary result id for MAPPING_ONLY runs")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <workflowId>",
		Short: "Show the status of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			status, err := app.orchestrator.GetWorkflowStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <workflowId>",
		Short: "Request cancellation of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.orchestrator.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("cancellation requested")
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <workflowId>",
		Short: "Resume an interrupted workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.orchestrator.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newJobsCmd() *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled onboarding jobs",
	}

	var (
		cronExpr    string
		targetTable string
		wfType      string
	)
	add := &cobra.Command{
		Use:   "add <name> <sourceRef> <targetSchema>",
		Short: "Add a scheduled onboarding job",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			job := &store.ScheduledJob{
				ID:             uuid.NewString(),
				Name:           args[0],
				CronExpression: cronExpr,
				SourceRef:      args[1],
				TargetSchema:   args[2],
				TargetTable:    targetTable,
				WorkflowType:   schema.WorkflowType(wfType),
				Enabled:        true,
			}
			if err := app.store.CreateScheduledJob(cmd.Context(), job); err != nil {
				return err
			}
			return printJSON(job)
		},
	}
	add.Flags().StringVar(&cronExpr, "cron", "0 2 * * *", "cron schedule")
	add.Flags().StringVar(&targetTable, "target-table", "", "target table to map onto")
	add.Flags().StringVar(&wfType, "type", string(schema.WorkflowFullOnboarding), "workflow type")

	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			jobs, err := app.store.ListScheduledJobs(cmd.Context(), store.ScheduledJobFilter{})
			if err != nil {
				return err
			}
			return printJSON(jobs)
		},
	}

	jobs.AddCommand(add, list)
	return jobs
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the job scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			sched := scheduler.NewScheduler(app.store, app.orchestrator, app.logger)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return sched.Stop()
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
