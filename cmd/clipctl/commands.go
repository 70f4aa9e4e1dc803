package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/maauso/clipforge-api/internal/bootstrap"
	"github.com/maauso/clipforge-api/internal/captions"
	"github.com/maauso/clipforge-api/internal/config"
	"github.com/maauso/clipforge-api/internal/layout"
	"github.com/maauso/clipforge-api/internal/server"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clipctl",
		Short:         "clipctl - short clip composition toolkit",
		Long:          "Render captioned short clips and inspect layouts, captions and subtitle files.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRenderCmd(),
		newImportSRTCmd(),
		newLayoutCmd(),
		newAnalyzeCmd(),
	)
	return root
}

func newRenderCmd() *cobra.Command {
	var requestFile string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a clip from a generate-video request file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readRequest(requestFile)
			if err != nil {
				return err
			}
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// The caller already owns this filesystem.
			cfg.AllowLocalSources = true
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

			deps, err := bootstrap.NewDependencies(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			last := -1
			res, err := deps.Service.Compose(cmd.Context(), req.ToInput(), func(p float64) {
				if int(p) != last {
					last = int(p)
					fmt.Fprintf(cmd.ErrOrStderr(), "\rrendering %3d%%", last)
				}
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&requestFile, "request", "", "generate-video request JSON file (- for stdin)")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func newImportSRTCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-srt [file.srt]",
		Short: "Convert an SRT file to caption JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open(cmd, args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			caps, err := captions.ParseSRT(r)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), server.CaptionsResponse{Captions: caps})
		},
	}
}

func newLayoutCmd() *cobra.Command {
	var (
		aspect        string
		titleHeight   int
		titleFontSize int
	)
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the layout plan for an aspect ratio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ratio, err := layout.ParseAspectRatio(aspect)
			if err != nil {
				return err
			}
			opts := layout.Options{TitleFontSize: titleFontSize}

			var plan layout.Plan
			if cmd.Flags().Changed("title-height") {
				plan, err = layout.Final(ratio, titleHeight, opts)
			} else {
				plan, err = layout.Tentative(ratio, opts)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), plan)
		},
	}
	cmd.Flags().StringVar(&aspect, "aspect", string(layout.DefaultAspectRatio), "aspect ratio (9:16, 16:9, 1:1, 4:5, 3:4)")
	cmd.Flags().IntVar(&titleHeight, "title-height", 0, "rasterized title height; omit for the tentative plan")
	cmd.Flags().IntVar(&titleFontSize, "title-font-size", 0, "title font size hint")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var requestFile string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report caption timing problems of a request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := readRequest(requestFile)
			if err != nil {
				return err
			}
			report := captions.Analyze(req.Captions, req.ToInput().Clip())
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&requestFile, "request", "", "generate-video request JSON file (- for stdin)")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func readRequest(path string) (server.GenerateVideoRequest, error) {
	var req server.GenerateVideoRequest
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path) // #nosec G304 - path is a user argument
		if err != nil {
			return req, fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	if req.YoutubeURL == "" {
		return req, errors.New("request: youtubeUrl is required")
	}
	if err := server.CheckTimeRange(req.StartTime, req.EndTime); err != nil {
		return req, fmt.Errorf("request: %w", err)
	}
	return req, nil
}

func open(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path) // #nosec G304 - path is a user argument
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
