// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/directory"
)

func newInspectCmd(v *viper.Viper) *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "inspect NAME",
		Short: "Show one sender's directory record",
		Example: `  texsharedemo inspect Cam1
  texsharedemo inspect Cam1 --follow --interval 500ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := v.GetString("root")
			if root == "" {
				root = directory.DefaultRoot()
			}
			r, err := directory.Open(root, texshare.SenderName(args[0]))
			if err != nil {
				return err
			}
			defer r.Close()

			info, err := r.Snapshot()
			if err != nil {
				return err
			}
			printInfo(cmd.OutOrStdout(), info)
			if !follow {
				return nil
			}
			return followFrames(cmd.Context(), r, interval, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "print the freshness counter as it advances")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval with --follow")
	return cmd
}

func printInfo(w io.Writer, info texshare.SenderInfo) {
	fmt.Fprintf(w, "Name:       %s\n", info.Name)
	fmt.Fprintf(w, "Size:       %dx%d\n", info.Descriptor.Width, info.Descriptor.Height)
	fmt.Fprintf(w, "Format:     %s\n", info.Descriptor.Format)
	fmt.Fprintf(w, "Generation: %d\n", info.Descriptor.Generation)
	fmt.Fprintf(w, "Handle:     %#x\n", uint64(info.Handle))
	fmt.Fprintf(w, "Epoch:      %d\n", info.Epoch)
	fmt.Fprintf(w, "Frame:      %d\n", info.Frame)
	fmt.Fprintf(w, "PID:        %d\n", info.PID)
}

// followFrames prints every change of the freshness counter until ctx ends.
func followFrames(ctx context.Context, r *directory.Reader, interval time.Duration, w io.Writer) error {
	if interval <= 0 {
		return fmt.Errorf("interval %v must be positive", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := r.Frame()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if n := r.Frame(); n != last {
			fmt.Fprintf(w, "frame %d (+%d)\n", n, n-last)
			last = n
		}
	}
}
