package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/timelinecraft/studio/internal/project"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Inspect and manage stored projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(func(ctx context.Context, repo project.Repository) error {
			summaries, err := repo.ListSummaries(ctx)
			if err != nil {
				return err
			}
			return printSummaries(cmd.OutOrStdout(), summaries)
		})
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return withManager(func(ctx context.Context, m *project.Manager) error {
			p, err := m.Create(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		})
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and release its reference images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *project.Manager) error {
			return m.Delete(ctx, args[0])
		})
	},
}

func init() {
	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd, projectsDeleteCmd)
	rootCmd.AddCommand(projectsCmd)
}

func printSummaries(w io.Writer, summaries []*project.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSEGMENTS\tDURATION\tVIDEO\tUPDATED")
	for _, s := range summaries {
		video := "-"
		if s.VideoRef != "" {
			video = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1fs\t%s\t%s\n",
			s.ID, s.Name, s.SegmentCount, s.TotalDuration, video, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// withRepository opens the database for a one-shot command.
func withRepository(fn func(ctx context.Context, repo project.Repository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, _, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	database, repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(context.Background(), repo)
}

// withManager is withRepository plus the services a Manager needs to
// release reference images.
func withManager(fn func(ctx context.Context, m *project.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, _, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	database, repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	refs, err := newRefStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	m := project.NewManager(project.Deps{
		Repo:     repo,
		Compiler: newCompiler(cfg, logger),
		Release:  refs.Release,
		Logger:   logger,
	})
	return fn(ctx, m)
}
