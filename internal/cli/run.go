package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/coverage"
	"github.com/conveyorci/conveyor/internal/instance"
	"github.com/conveyorci/conveyor/internal/orchestrator"
	"github.com/conveyorci/conveyor/internal/publish"
	"github.com/conveyorci/conveyor/internal/steps"
	"github.com/conveyorci/conveyor/internal/store"
	"github.com/conveyorci/conveyor/internal/trigger"
	"github.com/conveyorci/conveyor/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run [event] [ref]",
	Short: "Execute a pipeline run for a source event",
	Long: `Execute the full pipeline for an event: expand the matrix, run every
instance (provision, install, test, coverage), then build and push the image
when the matrix is green and the event allows publishing.

Events: push, pull_request, schedule, dispatch.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := eventFromArgs(cmd, args)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Schedule invocations usually carry no ref; instances still need one
		// to check out.
		if ev.Kind == trigger.Schedule && ev.Ref == "" {
			ev.Ref, err = defaultScheduleRef(cfg)
			if err != nil {
				return err
			}
		}

		st, database, cleanup, err := openRunDeps()
		if err != nil {
			return err
		}
		defer cleanup()

		wsDir, err := workspace.DefaultBaseDir()
		if err != nil {
			return err
		}
		workspaces := workspace.NewManager(&workspace.ExecGit{}, cfg.Workflow.Repo, wsDir)

		engine := instance.NewEngine(
			steps.NewRunner(&steps.ExecRunner{}),
			coverage.NewConverter(&steps.ExecRunner{}),
			coverage.NewUploader(cfg.Workflow.Coverage.UploadURL, cfg.Workflow.Coverage.TokenEnv),
			workspaces, st, database, cfg,
		)
		engine.SetProgress(cmd.ErrOrStderr())

		publisher := publish.NewPublisher(
			&publish.ExecDocker{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()},
			&publish.EnvCredentials{
				UsernameVar: cfg.Workflow.Publish.UsernameEnv,
				PasswordVar: cfg.Workflow.Publish.PasswordEnv,
			},
			cfg.Workflow.Publish,
		)
		publisher.SetProgress(cmd.ErrOrStderr())

		orch := orchestrator.New(cfg, engine, publisher, st, database)
		orch.SetProgress(cmd.ErrOrStderr())

		rs, err := orch.Run(cmd.Context(), ev)
		if errors.Is(err, orchestrator.ErrNotTriggered) {
			fmt.Fprintf(cmd.OutOrStdout(), "event %s on %s matches no trigger; nothing to do\n", ev.Kind, ev.Ref)
			return nil
		}
		if err != nil {
			return err
		}

		printRun(cmd, rs)
		if rs.Status != store.StatusPassed {
			cmd.SilenceUsage = true
			return fmt.Errorf("run %s %s", rs.ID, rs.Status)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [event] [ref]",
	Short: "Check whether an event would trigger a run",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := eventFromArgs(cmd, args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		matched, err := trigger.NewResolver(cfg.Workflow.Triggers).Resolve(ev)
		if err != nil {
			return err
		}
		if matched {
			fmt.Fprintf(cmd.OutOrStdout(), "event %s on %s triggers a run\n", ev.Kind, ev.Ref)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "event %s on %s does not trigger\n", ev.Kind, ev.Ref)
		}
		return nil
	},
}

// defaultScheduleRef picks the ref a schedule run builds when none was given:
// the push trigger's first branch.
func defaultScheduleRef(cfg *config.WorkflowConfig) (string, error) {
	if p := cfg.Workflow.Triggers.Push; p != nil && len(p.Branches) > 0 {
		return p.Branches[0], nil
	}
	return "", fmt.Errorf("schedule run needs an explicit ref: no push branch to default to")
}

// eventFromArgs builds a trigger.Event from command arguments and flags.
func eventFromArgs(cmd *cobra.Command, args []string) (trigger.Event, error) {
	kind, err := trigger.ParseEventKind(args[0])
	if err != nil {
		return trigger.Event{}, err
	}

	ref := ""
	if len(args) == 2 {
		ref = args[1]
	}
	if ref == "" && kind != trigger.Schedule {
		return trigger.Event{}, fmt.Errorf("event %s requires a ref argument", kind)
	}

	refKindStr, _ := cmd.Flags().GetString("ref-kind")
	refKind := trigger.Branch
	if refKindStr != "" {
		refKind, err = trigger.ParseRefKind(refKindStr)
		if err != nil {
			return trigger.Event{}, err
		}
	} else if strings.HasPrefix(ref, "v") && strings.Contains(ref, ".") {
		// Looks like a version tag; --ref-kind overrides this guess.
		refKind = trigger.Tag
	}

	at := time.Now()
	if atStr, _ := cmd.Flags().GetString("at"); atStr != "" {
		at, err = time.Parse(time.RFC3339, atStr)
		if err != nil {
			return trigger.Event{}, fmt.Errorf("parse --at: %w", err)
		}
	}

	return trigger.Event{Kind: kind, Ref: ref, RefKind: refKind, Time: at}, nil
}

// printRun writes a human-readable run summary.
func printRun(cmd *cobra.Command, rs *store.RunState) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nRun:     %s\n", rs.ID)
	fmt.Fprintf(w, "Event:   %s %s (%s)\n", rs.Event.Kind, rs.Event.Ref, rs.Event.RefKind)
	fmt.Fprintf(w, "Status:  %s\n", strings.ToUpper(rs.Status))
	for _, inst := range rs.Instances {
		line := fmt.Sprintf("  %-16s %s", inst.Name, inst.Status)
		if inst.FailedStep != "" {
			line += " (failed at " + inst.FailedStep + ")"
		}
		if inst.Duration != "" {
			line += " " + inst.Duration
		}
		fmt.Fprintln(w, line)
	}
	switch rs.PublishOutcome {
	case store.PublishSucceeded:
		fmt.Fprintf(w, "Publish: succeeded (%s)\n", strings.Join(rs.PublishedTags, ", "))
	case store.PublishSkipped:
		fmt.Fprintf(w, "Publish: skipped — %s\n", rs.PublishReason)
	case store.PublishFailed:
		fmt.Fprintf(w, "Publish: failed — %s\n", rs.PublishReason)
	}
}

func init() {
	for _, c := range []*cobra.Command{runCmd, resolveCmd} {
		c.Flags().String("ref-kind", "", "Ref kind: branch or tag (default: guessed from the ref)")
		c.Flags().String("at", "", "Event time for schedule matching, RFC3339 (default: now)")
	}
}
