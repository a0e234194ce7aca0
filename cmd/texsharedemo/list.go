// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/texshare/directory"
)

// senderView is the printable form of a directory entry.
type senderView struct {
	Name       string    `json:"name"`
	Width      uint32    `json:"width"`
	Height     uint32    `json:"height"`
	Format     string    `json:"format"`
	Generation uint64    `json:"generation"`
	Frame      uint64    `json:"frame"`
	Epoch      uint64    `json:"epoch"`
	PID        int       `json:"pid"`
	Alive      bool      `json:"alive"`
	Stamped    time.Time `json:"stamped"`
}

func viewOf(e directory.Entry) senderView {
	return senderView{
		Name:       string(e.Name),
		Width:      e.Descriptor.Width,
		Height:     e.Descriptor.Height,
		Format:     e.Descriptor.Format.String(),
		Generation: e.Descriptor.Generation,
		Frame:      e.Frame,
		Epoch:      e.Epoch,
		PID:        e.PID,
		Alive:      e.Alive,
		Stamped:    e.Stamped,
	}
}

func newListCmd(v *viper.Viper) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List senders in the sender directory",
		Example: `  texsharedemo list
  texsharedemo list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := v.GetString("root")
			if root == "" {
				root = directory.DefaultRoot()
			}
			entries, err := directory.List(root)
			if err != nil {
				return err
			}
			views := make([]senderView, 0, len(entries))
			for _, e := range entries {
				views = append(views, viewOf(e))
			}
			return printSenders(cmd.OutOrStdout(), output, views)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table or json)")
	return cmd
}

func printSenders(w io.Writer, output string, views []senderView) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tFORMAT\tGEN\tFRAME\tPID\tALIVE")
		for _, s := range views {
			alive := "no"
			if s.Alive {
				alive = "yes"
			}
			fmt.Fprintf(tw, "%s\t%dx%d\t%s\t%d\t%d\t%d\t%s\n",
				s.Name, s.Width, s.Height, s.Format, s.Generation, s.Frame, s.PID, alive)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported output format %q (use table or json)", output)
	}
}
