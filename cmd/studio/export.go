package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timelinecraft/studio/internal/export"
	"github.com/timelinecraft/studio/internal/project"
	"github.com/timelinecraft/studio/internal/segment"
)

var exportOpts struct {
	format       string
	outputDir    string
	title        string
	frameRate    float64
	includeVideo bool
}

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Write a project's timeline as a YAML manifest or an EDL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := absDir(exportOpts.outputDir)
		if err != nil {
			return err
		}
		req := export.ExportRequest{
			Format:       exportOpts.format,
			OutputDir:    dir,
			Title:        exportOpts.title,
			FrameRate:    exportOpts.frameRate,
			IncludeVideo: exportOpts.includeVideo,
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, _, err := newLogger(cfg, true)
		if err != nil {
			return err
		}
		if req.OutputDir == "" {
			req.OutputDir = cfg.ExportsDir()
			if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
				return fmt.Errorf("failed to create exports dir: %w", err)
			}
		}

		return withRepository(func(ctx context.Context, repo project.Repository) error {
			resp, err := exportProject(ctx, export.NewExporter(logger), repo, args[0], req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		})
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOpts.format, "format", export.FormatYAML, "yaml or edl")
	f.StringVarP(&exportOpts.outputDir, "out", "o", "", "existing output directory (default: the data dir's exports folder)")
	f.StringVar(&exportOpts.title, "title", "", "EDL title (default: project name)")
	f.Float64Var(&exportOpts.frameRate, "fps", 30, "EDL frame rate")
	f.BoolVar(&exportOpts.includeVideo, "include-video", false, "also copy the compiled video")
	rootCmd.AddCommand(exportCmd)
}

// exportProject exports a stored project without opening a live workspace.
func exportProject(ctx context.Context, exporter *export.Exporter, repo project.Repository, id string, req export.ExportRequest) (export.ExportResponse, error) {
	p, err := loadProject(ctx, repo, id)
	if err != nil {
		return export.ExportResponse{}, err
	}
	segments, err := repo.LoadSegments(ctx, id)
	if err != nil {
		return export.ExportResponse{}, err
	}
	store, err := segment.Restore(segments)
	if err != nil {
		return export.ExportResponse{}, err
	}
	layout := store.Layout()
	if len(layout) == 0 {
		return export.ExportResponse{}, fmt.Errorf("%w: project %s has no segments", export.ErrInvalidRequest, id)
	}
	if req.IncludeVideo && p.VideoRef == "" {
		return export.ExportResponse{}, fmt.Errorf("%w: project %s", export.ErrNoVideo, id)
	}

	resp, err := exporter.ExportTimeline(req, export.ManifestProject{ID: p.ID, Name: p.Name, Zoom: p.Zoom}, layout, p.VideoRef)
	if err != nil {
		return export.ExportResponse{}, err
	}
	if req.IncludeVideo {
		path, err := exporter.SaveVideo(ctx, p.VideoRef, req.OutputDir)
		if err != nil {
			return export.ExportResponse{}, err
		}
		resp.VideoPath = path
	}
	return resp, nil
}
