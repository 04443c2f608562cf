package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/todomagic/task"
)

const defaultServer = "http://localhost:9090"

// cli carries settings shared by every command.
type cli struct {
	v       *viper.Viper
	cfgFile string
	output  string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	cmd := &cobra.Command{
		Use:           "todomagic",
		Short:         "Schedule, repeat and tidy todo lists.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return c.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "settings file (default $HOME/.todomagic.yaml)")
	pf.String("server", defaultServer, "todomagic server URL (or $TODOMAGIC_SERVER)")
	pf.String("token", "", "JWT auth token (or $TODOMAGIC_TOKEN)")
	pf.StringVarP(&c.output, "output", "o", "table", "output format: table, json or yaml")
	_ = c.v.BindPFlag("server", pf.Lookup("server"))
	_ = c.v.BindPFlag("token", pf.Lookup("token"))

	addParse(cmd, c)
	addNext(cmd, c)
	addLogin(cmd, c)
	addStatus(cmd, c)
	addLists(cmd, c)
	addItems(cmd, c)
	addAdd(cmd, c)
	addRun(cmd, c)
	addRebuild(cmd, c)
	addGuards(cmd, c)
	addEvents(cmd, c)
	addVersion(cmd, c)
	addUpdate(cmd, c)
	return cmd
}

// load reads settings from the environment and the settings file, if any.
func (c *cli) load() error {
	c.v.SetEnvPrefix("TODOMAGIC")
	c.v.AutomaticEnv()
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		c.v.SetConfigName(".todomagic")
		c.v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read settings: %w", err)
		}
	}
	return nil
}

// settingsPath is where login --save writes.
func (c *cli) settingsPath() (string, error) {
	if c.cfgFile != "" {
		return c.cfgFile, nil
	}
	if used := c.v.ConfigFileUsed(); used != "" {
		return used, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home dir: %w", err)
	}
	return filepath.Join(home, ".todomagic.yaml"), nil
}

func (c *cli) client() *Client {
	return newClient(c.v.GetString("server"), c.v.GetString("token"))
}

// render writes v in the selected format, using table for the default one.
func (c *cli) render(w io.Writer, v any, table func(*uitable.Table)) error {
	switch c.output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		tbl := uitable.New()
		tbl.MaxColWidth = 60
		table(tbl)
		_, err := fmt.Fprintln(w, tbl)
		return err
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", c.output)
}

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	good    = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
	bad     = color.New(color.FgRed)
)

func header(cols ...any) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = bold.Sprint(c)
	}
	return out
}

func checkbox(s task.Status) string {
	if s == task.StatusCompleted {
		return good.Sprint("[x]")
	}
	return "[ ]"
}

func yesNo(b bool) string {
	if b {
		return good.Sprint("yes")
	}
	return faint.Sprint("no")
}

// parseWhen reads "2006-01-02" or "2006-01-02 15:04" in local time. Empty means now.
func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	d, err := task.ParseDue(s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return d.At, nil
}
