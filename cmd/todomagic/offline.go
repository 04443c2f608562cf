package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/reconcile"
	"github.com/GoCodeAlone/todomagic/repeat"
	"github.com/GoCodeAlone/todomagic/task"
)

func addParse(topLevel *cobra.Command, c *cli) {
	var now string
	cmd := &cobra.Command{
		Use:   "parse <title>",
		Short: "Show how a new item title would be scheduled",
		Example: `
todomagic parse "wash dog in 5d"
todomagic parse "gym workout every mon, wed, fri" --now "2025-06-17 08:00"
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseWhen(now)
			if err != nil {
				return err
			}
			// Preview never touches a host, so an engine without one is enough.
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			engine := reconcile.NewEngine(nil, reconcile.NewGuards(0), clock.NewFake(at), nil, logger)
			p := engine.Preview(strings.Join(args, " "))

			return c.render(cmd.OutOrStdout(), p, func(tbl *uitable.Table) {
				if !p.Candidate {
					tbl.AddRow(warning.Sprint("not a scheduling candidate:"), p.Original)
					if p.TokenError != "" {
						tbl.AddRow(bad.Sprint("repeat token:"), p.TokenError)
					}
					return
				}
				tbl.AddRow(bold.Sprint("title"), p.Title)
				tbl.AddRow(bold.Sprint("name"), p.Name)
				if p.Rule != "" {
					tbl.AddRow(bold.Sprint("repeat"), p.Rule)
				}
				tbl.AddRow(bold.Sprint("due"), task.DateTime(p.Due).String())
				if p.TokenError != "" {
					tbl.AddRow(bad.Sprint("repeat token"), p.TokenError)
				}
			})
		},
	}
	cmd.Flags().StringVar(&now, "now", "", `reference time, "2006-01-02" or "2006-01-02 15:04" (default now)`)
	topLevel.AddCommand(cmd)
}

// nextResult is the output of the next command.
type nextResult struct {
	Token     string `json:"token" yaml:"token"`
	Rule      string `json:"rule" yaml:"rule"`
	Completed string `json:"completed" yaml:"completed"`
	PriorDue  string `json:"prior_due,omitempty" yaml:"prior_due,omitempty"`
	Next      string `json:"next" yaml:"next"`
}

func addNext(topLevel *cobra.Command, c *cli) {
	var due, completed string
	cmd := &cobra.Command{
		Use:   "next <token>",
		Short: "Compute the next due of a repeating item",
		Example: `
todomagic next "[m]" --due 2025-07-15 --completed 2025-07-10
todomagic next "[w-mwf]" --completed "2025-06-18 19:30"
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := repeat.Parse(args[0])
			if err != nil {
				return err
			}
			done, err := parseWhen(completed)
			if err != nil {
				return fmt.Errorf("--completed: %w", err)
			}
			var prior task.Due
			hasPrior := due != ""
			if hasPrior {
				if prior, err = task.ParseDue(due, time.Local); err != nil {
					return fmt.Errorf("--due: %w", err)
				}
			}

			next, ok := reconcile.NextDue(done, prior, hasPrior, rule)
			if !ok {
				return fmt.Errorf("no next instance for %s", args[0])
			}
			res := nextResult{
				Token:     rule.Token(),
				Rule:      rule.String(),
				Completed: task.DateTime(done).String(),
				Next:      next.String(),
			}
			if hasPrior {
				res.PriorDue = prior.String()
			}
			return c.render(cmd.OutOrStdout(), res, func(tbl *uitable.Table) {
				tbl.AddRow(bold.Sprint("rule"), fmt.Sprintf("%s (%s)", res.Token, res.Rule))
				if res.PriorDue != "" {
					tbl.AddRow(bold.Sprint("was due"), res.PriorDue)
				}
				tbl.AddRow(bold.Sprint("completed"), res.Completed)
				tbl.AddRow(bold.Sprint("next due"), good.Sprint(res.Next))
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due of the completed instance")
	cmd.Flags().StringVar(&completed, "completed", "", "completion time (default now)")
	topLevel.AddCommand(cmd)
}
