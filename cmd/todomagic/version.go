package main

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/todomagic/internal/version"
	"github.com/GoCodeAlone/todomagic/update"
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	Server    string `json:"server,omitempty" yaml:"server,omitempty"`
}

func addVersion(topLevel *cobra.Command, c *cli) {
	var remote bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version, and the server's with --remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{Version: version.Version, Commit: version.Commit, BuildDate: version.BuildDate}
			if remote {
				var res map[string]string
				if err := c.client().get(cmd.Context(), "/api/version", &res); err != nil {
					return err
				}
				info.Server = res["version"]
			}
			return c.render(cmd.OutOrStdout(), info, func(tbl *uitable.Table) {
				tbl.AddRow(bold.Sprint("todomagic"), version.String())
				if info.Server != "" {
					tbl.AddRow(bold.Sprint("server"), info.Server)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "also ask the server for its version")
	topLevel.AddCommand(cmd)
}

func addUpdate(topLevel *cobra.Command, _ *cli) {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace this binary with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := update.New(version.Version, "todomagic")
			rel, err := u.CheckForUpdate(cmd.Context())
			if err != nil {
				return fmt.Errorf("check for update: %w", err)
			}
			out := cmd.OutOrStdout()
			if rel == nil {
				fmt.Fprintln(out, good.Sprintf("todomagic %s is up to date", version.Version))
				return nil
			}
			if checkOnly {
				fmt.Fprintf(out, "%s is available (running %s)\n", bold.Sprint(rel.Version), version.Version)
				return nil
			}
			fmt.Fprintf(out, "updating to %s (%s)...\n", rel.Version, rel.Asset)
			if rel.SHA256 == "" {
				fmt.Fprintln(out, warning.Sprint("release publishes no checksums; installing unverified"))
			}
			if err := u.ApplyUpdate(cmd.Context(), rel); err != nil {
				return fmt.Errorf("apply update: %w", err)
			}
			fmt.Fprintln(out, good.Sprintf("updated to %s", rel.Version))
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "only report whether an update exists")
	topLevel.AddCommand(cmd)
}
