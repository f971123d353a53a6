package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/internal/publish"
	"github.com/conveyorci/conveyor/internal/store"
	"github.com/conveyorci/conveyor/internal/trigger"
)

var publishCmd = &cobra.Command{
	Use:   "publish [ref]",
	Short: "Build and push the image for a ref whose matrix already passed",
	Long: `Run the publish stage directly: backend check, registry login, tag
derivation, and one multi-tag build+push.

The matrix gate still applies: the most recent recorded run for the ref must
have passed. Use --force to publish without a recorded green run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]

		refKindStr, _ := cmd.Flags().GetString("ref-kind")
		refKind := trigger.Branch
		if refKindStr != "" {
			var err error
			refKind, err = trigger.ParseRefKind(refKindStr)
			if err != nil {
				return err
			}
		} else if strings.HasPrefix(ref, "v") && strings.Contains(ref, ".") {
			refKind = trigger.Tag
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		st, database, cleanup, err := openRunDeps()
		if err != nil {
			return err
		}
		defer cleanup()

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			rs, err := latestRunForRef(st, ref)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			if rs == nil {
				return fmt.Errorf("no recorded run for ref %q; run the matrix first or use --force", ref)
			}
			if rs.Status != store.StatusPassed {
				return fmt.Errorf("latest run %s for ref %q is %s, not passed; use --force to override", rs.ID, ref, rs.Status)
			}
			if rs.Event.Kind == trigger.PullRequest {
				return fmt.Errorf("latest run for ref %q is a pull_request run; images never ship from PRs", ref)
			}
		}

		publisher := publish.NewPublisher(
			&publish.ExecDocker{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()},
			&publish.EnvCredentials{
				UsernameVar: cfg.Workflow.Publish.UsernameEnv,
				PasswordVar: cfg.Workflow.Publish.PasswordEnv,
			},
			cfg.Workflow.Publish,
		)
		publisher.SetProgress(cmd.ErrOrStderr())

		result, err := publisher.Publish(cmd.Context(), ref, refKind)
		if err != nil {
			cmd.SilenceUsage = true
			return err
		}

		_ = database.LogPublishEvent("manual-"+store.NewRunID(time.Now()), store.PublishSucceeded, "manual publish", strings.Join(result.Tags, ","))
		fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", strings.Join(result.Tags, ", "))
		return nil
	},
}

// latestRunForRef returns the newest recorded run for a ref, or nil.
func latestRunForRef(st *store.Store, ref string) (*store.RunState, error) {
	runs, err := st.List("")
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Event.Ref == ref {
			return &runs[i], nil
		}
	}
	return nil, nil
}

func init() {
	publishCmd.Flags().String("ref-kind", "", "Ref kind: branch or tag (default: guessed from the ref)")
	publishCmd.Flags().Bool("force", false, "Publish without a recorded green run for the ref")
}
