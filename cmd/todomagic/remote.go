package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/reconcile"
	"github.com/GoCodeAlone/todomagic/server/api"
	"github.com/GoCodeAlone/todomagic/task"
)

type loginResult struct {
	Token     string    `json:"token" yaml:"token"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

func addLogin(topLevel *cobra.Command, c *cli) {
	var user, password string
	var save bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Get an API token from the server",
		Example: `
todomagic login --password hunter2 --save
TODOMAGIC_PASSWORD=hunter2 todomagic login
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("TODOMAGIC_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("a password is required (--password or $TODOMAGIC_PASSWORD)")
			}
			var res loginResult
			body := map[string]string{"username": user, "password": password}
			if err := c.client().post(cmd.Context(), "/api/auth/login", body, &res); err != nil {
				return err
			}
			if save {
				path, err := c.settingsPath()
				if err != nil {
					return err
				}
				c.v.Set("token", res.Token)
				if err := c.v.WriteConfigAs(path); err != nil {
					return fmt.Errorf("save token: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), good.Sprint("token saved to "+path))
			}
			return c.render(cmd.OutOrStdout(), res, func(tbl *uitable.Table) {
				tbl.AddRow(bold.Sprint("token"), res.Token)
				tbl.AddRow(bold.Sprint("expires"), res.ExpiresAt.Local().Format(time.RFC1123))
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "admin", "username")
	cmd.Flags().StringVar(&password, "password", "", "password (or $TODOMAGIC_PASSWORD)")
	cmd.Flags().BoolVar(&save, "save", false, "write the token to the settings file")
	topLevel.AddCommand(cmd)
}

func addStatus(topLevel *cobra.Command, c *cli) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res map[string]any
			if err := c.client().get(cmd.Context(), "/api/status", &res); err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), res, func(tbl *uitable.Table) {
				for _, k := range []string{"status", "version", "uptime"} {
					if v, ok := res[k]; ok {
						tbl.AddRow(bold.Sprint(k), fmt.Sprint(v))
					}
				}
			})
		},
	})
}

// features lists the enabled duties of a managed list.
func features(o *reconcile.ListOptions) string {
	if o == nil {
		return "-"
	}
	var out []string
	if o.AutoDue {
		out = append(out, "due")
	}
	if o.AutoSort {
		out = append(out, "sort")
	}
	if o.Recurrence {
		out = append(out, "repeat")
	}
	if o.AutoClear {
		out = append(out, fmt.Sprintf("clear(%dd)", o.AutoClearDays))
	}
	if len(out) == 0 {
		return faint.Sprint("none")
	}
	return strings.Join(out, ",")
}

func workerStatus(w *reconcile.WorkerInfo) string {
	if w == nil {
		return faint.Sprint("-")
	}
	switch w.Status {
	case reconcile.StatusWorking:
		return warning.Sprintf("%s (%s)", w.Status, w.CurrentJob)
	case reconcile.StatusStopped:
		return faint.Sprint(w.Status)
	}
	return good.Sprint(w.Status)
}

func addLists(topLevel *cobra.Command, c *cli) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "lists",
		Short: "Show managed and smart lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var lists []api.ListInfo
			if err := c.client().get(cmd.Context(), "/api/lists", &lists); err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), lists, func(tbl *uitable.Table) {
				tbl.AddRow(header("ENTITY", "SMART", "FEATURES", "WORKER", "PROCESSED", "LAST ERROR")...)
				for _, l := range lists {
					processed, lastErr := "-", ""
					if l.Worker != nil {
						processed = strconv.Itoa(l.Worker.Processed)
						lastErr = l.Worker.LastError
					}
					tbl.AddRow(l.Entity, yesNo(l.Smart), features(l.Options), workerStatus(l.Worker), processed, bad.Sprint(lastErr))
				}
			})
		},
	})
}

func addItems(topLevel *cobra.Command, c *cli) {
	topLevel.AddCommand(&cobra.Command{
		Use:     "items <entity>",
		Short:   "Show the items of a list",
		Example: "  todomagic items todo.inbox",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []task.Item
			if err := c.client().get(cmd.Context(), listPath(args[0], "/items"), &items); err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), items, func(tbl *uitable.Table) {
				tbl.AddRow(header("", "SUMMARY", "DUE")...)
				for _, it := range items {
					due := it.Due
					if due == "" {
						due = faint.Sprint("-")
					}
					tbl.AddRow(checkbox(it.Status), it.Summary, due)
				}
			})
		},
	})
}

func addAdd(topLevel *cobra.Command, c *cli) {
	var due string
	cmd := &cobra.Command{
		Use:   "add <entity> <summary...>",
		Short: "Add an item to a managed list",
		Example: `
todomagic add todo.inbox wash dog in 5d
todomagic add todo.inbox "pay rent [m]" --due 2025-07-01
`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"summary": strings.Join(args[1:], " ")}
			if due != "" {
				body["due"] = due
			}
			var res map[string]string
			if err := c.client().post(cmd.Context(), listPath(args[0], "/items"), body, &res); err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), res, func(tbl *uitable.Table) {
				tbl.AddRow(good.Sprint("added"), res["summary"], faint.Sprint("to "+res["entity"]))
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", `due date, "2006-01-02" or "2006-01-02 15:04"`)
	topLevel.AddCommand(cmd)
}

// jobResult mirrors the server's accepted-job body.
type jobResult struct {
	Entity string            `json:"entity" yaml:"entity"`
	Job    reconcile.JobKind `json:"job" yaml:"job"`
	Queued bool              `json:"queued" yaml:"queued"`
}

func (c *cli) renderJob(cmd *cobra.Command, res jobResult) error {
	return c.render(cmd.OutOrStdout(), res, func(tbl *uitable.Table) {
		if res.Queued {
			tbl.AddRow(good.Sprint("queued"), string(res.Job), faint.Sprint("on "+res.Entity))
			return
		}
		tbl.AddRow(warning.Sprint("already pending"), string(res.Job), faint.Sprint("on "+res.Entity))
	})
}

func addRun(topLevel *cobra.Command, c *cli) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "run <entity> <job>",
		Short: "Queue a job on a list's worker",
		Long: `Queue a job on a list's worker. Jobs: new_items, completions, sort, clear.
A job that is already waiting on the worker is not queued twice.`,
		Example: "  todomagic run todo.inbox sort",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res jobResult
			path := listPath(args[0], "/jobs/", url.PathEscape(args[1]))
			if err := c.client().post(cmd.Context(), path, nil, &res); err != nil {
				return err
			}
			return c.renderJob(cmd, res)
		},
	})
}

func addRebuild(topLevel *cobra.Command, c *cli) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the smart lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res jobResult
			if err := c.client().post(cmd.Context(), "/api/smartlists/rebuild", nil, &res); err != nil {
				return err
			}
			return c.renderJob(cmd, res)
		},
	})
}

func addGuards(topLevel *cobra.Command, c *cli) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "guards",
		Short: "Show the items the engine is currently holding back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var g reconcile.GuardSnapshot
			if err := c.client().get(cmd.Context(), "/api/guards", &g); err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), g, func(tbl *uitable.Table) {
				tbl.AddRow(header("GUARD", "KEY")...)
				for _, set := range []struct {
					name string
					keys []string
				}{{"processing", g.Processing}, {"completed", g.Completed}, {"created", g.Created}} {
					for _, k := range set.keys {
						tbl.AddRow(set.name, k)
					}
				}
			})
		},
	})
}

func eventRow(tbl *uitable.Table, ev *comms.Event) {
	detail := ev.Summary
	if ev.Detail != "" {
		detail += " " + faint.Sprint(ev.Detail)
	}
	tbl.AddRow(faint.Sprint(ev.Timestamp.Local().Format("15:04:05")), string(ev.Type), ev.Entity, detail)
}

func addEvents(topLevel *cobra.Command, c *cli) {
	var entity string
	var limit int
	var follow bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent engine events",
		Example: `
todomagic events --entity todo.inbox --limit 20
todomagic events --follow
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl := c.client()
			if follow {
				return cl.follow(cmd.Context(), entity, func(ev *comms.Event) {
					_ = c.render(cmd.OutOrStdout(), ev, func(tbl *uitable.Table) { eventRow(tbl, ev) })
				})
			}
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if entity != "" {
				q.Set("entity", entity)
			}
			var events []*comms.Event
			if err := cl.get(cmd.Context(), "/api/events?"+q.Encode(), &events); err != nil {
				return err
			}
			return c.render(cmd.OutOrStdout(), events, func(tbl *uitable.Table) {
				tbl.AddRow(header("TIME", "TYPE", "ENTITY", "SUMMARY")...)
				for _, ev := range events {
					eventRow(tbl, ev)
				}
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "only events for this list")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream events as they happen")
	topLevel.AddCommand(cmd)
}
