package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/GoCodeAlone/workflow-wizard/graph"
	"github.com/GoCodeAlone/workflow-wizard/orchestrator"
	"github.com/GoCodeAlone/workflow-wizard/store"
	"github.com/GoCodeAlone/workflow-wizard/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <request>",
		Short: "Show the parsed intent and skeleton of a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBackend(cmd)
			if err != nil {
				return err
			}
			parsed, err := b.intents.Parse(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("parse failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), parsed)
		},
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Generate a workflow for a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			quiet, _ := cmd.Flags().GetBool("quiet")

			b, err := newBackend(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errOut := cmd.ErrOrStderr()
			opts := append(b.orchestratorOptions(), orchestrator.WithBatchSize(batchSize))
			if !quiet {
				opts = append(opts, orchestrator.WithOnProgress(func(p orchestrator.Progress) {
					fmt.Fprintf(errOut, "batch %d/%d: %d/%d actors\n", p.BatchesCompleted, p.BatchCount, p.Actors, p.TotalActors)
				}))
			}
			o := orchestrator.New(b.intents, b.batches, opts...)
			defer o.Close()

			sug, err := o.Run(ctx, strings.Join(args, " "))
			if errors.Is(err, orchestrator.ErrCancelled) {
				return errors.New("run cancelled")
			}
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return writeJSON(cmd.OutOrStdout(), sug)
			}
			if err := saveSuggestion(output, *sug); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(errOut, "wrote %s (%d nodes, %d connections)\n", output, len(sug.Nodes), len(sug.Connections))
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the suggestion JSON to this file instead of stdout")
	cmd.Flags().Int("batch-size", 0, "Actors per batch (1-25, 0 uses the default)")
	cmd.Flags().BoolP("quiet", "q", false, "Suppress progress output")
	return cmd
}

func saveSuggestion(path string, s graph.WizardSuggestion) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode suggestion: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write suggestion: %w", err)
	}
	return nil
}

func newTUICommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui [request]",
		Short: "Run the interactive wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("save-dir")
			b, err := newBackend(cmd)
			if err != nil {
				return err
			}
			// Logs would corrupt the alternate screen.
			b.logger = slog.New(slog.DiscardHandler)

			opts := []tui.Option{tui.WithSave(func(s graph.WizardSuggestion) (string, error) {
				name := s.ID
				if name == "" {
					name = "suggestion"
				}
				path := filepath.Join(dir, name+".json")
				return path, saveSuggestion(path, s)
			})}
			if len(args) > 0 {
				opts = append(opts, tui.WithQuery(strings.Join(args, " ")))
			}

			app := tui.NewApp(b.intents, b.batches, b.orchestratorOptions(), opts...)
			_, err = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			app.Orchestrator().Close()
			return err
		},
	}
	cmd.Flags().String("save-dir", ".", "Directory for saved suggestions")
	return cmd
}

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List recorded runs on the server, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBackend(cmd)
			if err != nil {
				return err
			}
			if b.remote == nil {
				return errors.New("runs needs --server")
			}
			ctx := cmd.Context()
			if len(args) == 1 {
				timeline, err := b.remote.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), timeline)
			}

			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := b.remote.ListRuns(ctx, store.RunFilter{Status: status, Limit: limit})
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().String("status", "", "Only runs with this status")
	cmd.Flags().Int("limit", 20, "Maximum number of runs")
	return cmd
}

func printRuns(w io.Writer, runs []store.RunTimeline) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tACTORS\tBATCHES\tSTARTED\tQUERY")
	for _, r := range runs {
		started := "-"
		if r.StartedAt != nil {
			started = r.StartedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			r.RunID, r.Status, r.ActorCount, r.AgentCount, len(r.Batches), started, r.Query)
	}
	return tw.Flush()
}
