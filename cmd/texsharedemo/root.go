// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/texshare"
)

// newRootCmd builds the command tree around one viper instance.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "texsharedemo",
		Short: "Share rendered frames between processes through GPU textures",
		Long: `texsharedemo drives a synthetic camera through texshare and lists the
senders published in the sender directory.

Configuration is read from flags, TEXSHARE_* environment variables and an
optional YAML file, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			level, err := parseLevel(v.GetString("log_level"))
			if err != nil {
				return err
			}
			texshare.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	v.SetEnvPrefix("TEXSHARE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("root", "", "sender directory (default $XDG_RUNTIME_DIR/texshare)")
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("root", pf.Lookup("root"))

	root.AddCommand(newRunCmd(v), newListCmd(v), newInspectCmd(v))
	return root
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
