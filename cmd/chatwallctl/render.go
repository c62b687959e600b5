package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"

	"github.com/bassista/go_chatwall/internal/render"
	"github.com/spf13/cobra"
)

func newRenderCmd(opts *globalOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "render <screen-id>",
		Short: "Render a whole screen to a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeApp(a)

			full, err := a.Dispatcher.RenderFull(cmd.Context(), args[0], opts.locale)
			if err != nil {
				return fmt.Errorf("render %s: %w", args[0], err)
			}
			if out == "" {
				out = args[0] + ".png"
			}
			if err := writePNG(out, full.Image); err != nil {
				return err
			}
			b := full.Image.Bounds()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d)\n", out, b.Dx(), b.Dy())
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to <screen-id>.png)")
	return cmd
}

func newTileCmd(opts *globalOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "tile <screen-id> <x> <y>",
		Short: "Render one 128x128 tile of a screen to a PNG file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, errX := strconv.Atoi(args[1])
			y, errY := strconv.Atoi(args[2])
			if errX != nil || errY != nil || x < 0 || y < 0 {
				return fmt.Errorf("tile coordinates must be non-negative integers, got %q %q", args[1], args[2])
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if _, ok := a.Store.Get(args[0]); !ok {
				return fmt.Errorf("tile %s: %w", args[0], render.ErrNoScreen)
			}
			tile, ok := a.Dispatcher.RenderTile(cmd.Context(), args[0], x, y, opts.locale)
			if !ok {
				return fmt.Errorf("tile %d,%d of %s is not available", x, y, args[0])
			}
			if out == "" {
				out = fmt.Sprintf("%s_%d_%d.png", args[0], x, y)
			}
			if err := writePNG(out, tile); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to <screen-id>_<x>_<y>.png)")
	return cmd
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
