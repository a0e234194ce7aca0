// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command texsharedemo publishes a synthetic camera feed through texshare
// and inspects the senders visible on this machine.
//
//	texsharedemo run --sender Cam1 --resolution 720p --fps 60
//	texsharedemo list
//	texsharedemo inspect Cam1 --follow
//
// Every flag can also be set in a YAML file (--config) or through a
// TEXSHARE_ environment variable, e.g. TEXSHARE_RESOLUTION=4K.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
