// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/texshare"
	"github.com/gogpu/texshare/bridge/soft"
	"github.com/gogpu/texshare/directory"
	"github.com/gogpu/texshare/host"
)

// closeTimeout bounds the wait for copies in flight at shutdown.
const closeTimeout = 2 * time.Second

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Publish a synthetic camera feed",
		Long: `Render a synthetic scene on the CPU, scale it to the camera output size and
publish it through the soft bridge under a sender name. The sender is listed
in the sender directory until the command exits.`,
		Example: `  # One 720p sender at 60 fps
  texsharedemo run --sender Cam1 --resolution 720p --fps 60

  # Custom output size, stop after 300 frames, print the consumer view
  texsharedemo run --width 800 --height 600 --frames 300 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(v)
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("sender", "Cam1", "sender name")
	f.String("format", "bgra8", "pixel format (rgba8, bgra8, rgba8_srgb, bgra8_srgb)")
	f.String("resolution", host.DefaultResolution.String(), "output preset (240p ... 4K)")
	f.Uint32("width", 0, "custom output width, used with --height")
	f.Uint32("height", 0, "custom output height, used with --width")
	f.Int("render-width", 640, "width the scene is rendered at before scaling")
	f.Int("render-height", 360, "height the scene is rendered at before scaling")
	f.Int("fps", 30, "frames per second")
	f.Int("frames", 0, "stop after this many frames (0 runs until interrupted)")
	f.Bool("watch", false, "follow the sender through the directory like a consumer")
	for _, name := range []string{"sender", "format", "resolution", "width", "height",
		"render-width", "render-height", "fps", "frames", "watch"} {
		_ = v.BindPFlag(flagKey(name), f.Lookup(name))
	}
	return cmd
}

// runDemo publishes frames until cfg.Frames were rendered or ctx ends.
func runDemo(ctx context.Context, cfg runConfig, out io.Writer) error {
	log := texshare.Logger()

	bridge, err := texshare.NewBridge(texshare.BridgeSoft)
	if err != nil {
		return err
	}
	dir, err := directory.New(cfg.Root)
	if err != nil {
		return err
	}
	defer dir.Close()

	svc := texshare.NewService(bridge, texshare.WithAnnouncer(dir))
	cam := host.NewCamera(svc, cfg.Sender,
		host.WithFormat(cfg.Format), host.WithResolution(cfg.Resolution))
	if cfg.CustomWidth > 0 && cfg.CustomHeight > 0 {
		cam.SetCustomResolution(cfg.CustomWidth, cfg.CustomHeight)
		cam.UseCustomResolution(true)
	}
	w, h := cam.EffectiveOutputSize()
	log.Info("publishing", "sender", string(cfg.Sender), "width", w, "height", h,
		"format", cfg.Format.String(), "root", dir.Root())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return renderLoop(gctx, cfg, svc, cam)
	})
	if cfg.Watch {
		g.Go(func() error {
			return watch(gctx, dir.Root(), cfg.Sender, time.Second, out)
		})
	}
	err = g.Wait()

	closeCtx, done := context.WithTimeout(context.Background(), closeTimeout)
	defer done()
	err = errors.Join(err, cam.Close(closeCtx))
	st := svc.Stats()
	err = errors.Join(err, svc.Close(closeCtx))

	fmt.Fprintf(out, "%s: %d published, %d dropped, %d skipped\n",
		cfg.Sender, st.Published, st.Dropped, st.Skipped)
	return err
}

// renderLoop renders, scales and publishes one frame per tick.
func renderLoop(ctx context.Context, cfg runConfig, svc *texshare.Service, cam *host.Camera) error {
	log := texshare.Logger()
	sc := newScene(cfg.RenderWidth, cfg.RenderHeight)
	ticker := time.NewTicker(cfg.interval())
	defer ticker.Stop()

	var target *soft.Texture
	for n := 0; cfg.Frames == 0 || n < cfg.Frames; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		w, h := cam.EffectiveOutputSize()
		if target == nil || target.Width() != w || target.Height() != h {
			target = soft.NewTexture(w, h, cfg.Format)
		}
		sc.render(n)
		if err := target.SetPixels(sc.frame(w, h, cfg.Format)); err != nil {
			return err
		}

		outcome, err := cam.Tick(ctx, target)
		switch {
		case err == nil:
			log.Debug("frame", "n", n, "outcome", outcome.String())
		case ctx.Err() != nil:
			return nil
		case texshare.IsFatal(err):
			log.Warn("device lost, recovering", "err", err)
			if err := svc.Recover(ctx); err != nil {
				return fmt.Errorf("recover: %w", err)
			}
		case errors.Is(err, texshare.ErrNameCollision):
			return err
		default:
			log.Warn("frame skipped", "n", n, "err", err)
		}
	}
	return nil
}

// watch polls the sender's directory record the way a consumer would and
// prints its frame rate every period.
func watch(ctx context.Context, root string, name texshare.SenderName, period time.Duration, out io.Writer) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var (
		r    *directory.Reader
		last uint64
	)
	defer func() {
		if r != nil {
			r.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if r == nil {
			var err error
			if r, err = directory.Open(root, name); err != nil {
				r = nil
				continue
			}
		}
		info, err := r.Snapshot()
		if err != nil {
			continue
		}
		fps := float64(info.Frame-last) / period.Seconds()
		last = info.Frame
		fmt.Fprintf(out, "%s: %s frame %d (%.1f fps)\n", name, info.Descriptor, info.Frame, fps)
	}
}

// flagKey maps a flag name to its viper key.
func flagKey(flag string) string { return strings.ReplaceAll(flag, "-", "_") }
