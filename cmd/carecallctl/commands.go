package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"carecall-platform/internal/auth"
	"carecall-platform/internal/eligibility"
	"carecall-platform/internal/queue"
	"carecall-platform/internal/rbac"
	"carecall-platform/internal/residents"

	"github.com/spf13/cobra"
)

type Evaluator interface {
	Evaluate(ctx context.Context, r residents.Resident, now time.Time) (eligibility.Decision, error)
}

// env is what every subcommand runs against.
type env struct {
	Jobs         *queue.Client
	Residents    residents.Repository
	Eligibility  Evaluator
	Tokens       *auth.Manager
	TickInterval time.Duration
	Now          func() time.Time
	Close        func()
}

type opener func(ctx context.Context) (*env, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "carecallctl",
		Short:         "Operate the carecall job queue and scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newJobsCommand(open),
		newTickCommand(open),
		newEligibilityCommand(open),
		newTokenCommand(open),
	)
	return root
}

// withEnv opens the environment for one command run.
func withEnv(open opener, fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd.Context())
		if err != nil {
			return err
		}
		if e.Close != nil {
			defer e.Close()
		}
		return fn(cmd, e, args)
	}
}

func newJobsCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Args:  cobra.NoArgs,
		Short: "Inspect and requeue background jobs",
	}

	var limit int
	list := func(use, short string, pick func(queue.Queue) func(context.Context, int) ([]queue.Job, error)) *cobra.Command {
		c := &cobra.Command{
			Use:   use,
			Args:  cobra.NoArgs,
			Short: short,
			RunE: withEnv(open, func(cmd *cobra.Command, e *env, _ []string) error {
				jobs, err := pick(e.Jobs.Queue())(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), jobs)
			}),
		}
		c.Flags().IntVar(&limit, "limit", 20, "maximum jobs to list")
		return c
	}

	requeue := &cobra.Command{
		Use:   "requeue <job-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Move a failed job back to waiting with a fresh retry budget",
		RunE: withEnv(open, func(cmd *cobra.Command, e *env, args []string) error {
			j, err := e.Jobs.Queue().Requeue(cmd.Context(), args[0], e.Now())
			if err != nil {
				return fmt.Errorf("requeue %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), j)
		}),
	}

	cmd.AddCommand(
		list("failed", "List recently failed jobs", func(q queue.Queue) func(context.Context, int) ([]queue.Job, error) { return q.Failed }),
		list("completed", "List recently completed jobs", func(q queue.Queue) func(context.Context, int) ([]queue.Job, error) { return q.Completed }),
		requeue,
	)
	return cmd
}

func newTickCommand(open opener) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "tick",
		Args:  cobra.NoArgs,
		Short: "Enqueue a scheduler tick",
		Long: `Enqueue a scheduler tick for the current interval window.
With --force the tick gets its own id and runs even if this window already has one.`,
		RunE: withEnv(open, func(cmd *cobra.Command, e *env, _ []string) error {
			opts := queue.Options{}
			if !force {
				opts.ID = queue.TickID(e.Now(), e.TickInterval)
			}
			j, added, err := e.Jobs.AddWith(cmd.Context(), queue.ScheduledTick{}, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"job": j, "enqueued": added})
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "enqueue even if this window already has a tick")
	return cmd
}

func newEligibilityCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "eligibility <resident-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Explain whether a resident is due for a call now",
		RunE: withEnv(open, func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			r, err := e.Residents.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("resident %s: %w", args[0], err)
			}
			now := e.Now()
			d, err := e.Eligibility.Evaluate(ctx, r, now)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"resident_id": r.ID,
				"schedulable": r.Schedulable(now),
				"decision":    d,
			})
		}),
	}
}

func newTokenCommand(open opener) *cobra.Command {
	var userID, facilityID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Args:  cobra.NoArgs,
		Short: "Issue an admin API access token",
		RunE: withEnv(open, func(cmd *cobra.Command, e *env, _ []string) error {
			switch role {
			case rbac.RoleStaff, rbac.RoleAdmin:
				if facilityID == "" {
					return fmt.Errorf("--facility is required for role %s", role)
				}
			case rbac.RoleSuperAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			tok, err := e.Tokens.Issue(e.Now(), userID, facilityID, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id carried in the token")
	cmd.Flags().StringVar(&facilityID, "facility", "", "facility the token is scoped to")
	cmd.Flags().StringVar(&role, "role", rbac.RoleStaff, "staff, admin or super_admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
