// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildmatrix/buildmatrix/internal/artifact"
)

func newArtifactsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List and download published artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list <run-id>",
		Short: "List the artifacts of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.listArtifacts(cmd.Context(), args[0], asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print the manifests as JSON")

	fetch := &cobra.Command{
		Use:   "fetch <run-id> <name> <dest>",
		Short: "Download an artifact and verify its checksums",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fetchArtifact(cmd.Context(), args[0], args[1], args[2])
		},
	}

	cmd.AddCommand(list, fetch)
	return cmd
}

func (a *App) openStore(ctx context.Context) (context.Context, artifact.Store, error) {
	ctx, cfg, err := a.setup(ctx)
	if err != nil {
		return ctx, nil, err
	}
	store, err := artifact.Open(ctx, cfg)
	return ctx, store, err
}

func (a *App) listArtifacts(ctx context.Context, runID string, asJSON bool) error {
	ctx, store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	arts, err := store.List(ctx, runID)
	if err != nil {
		return err
	}
	if asJSON {
		if arts == nil {
			arts = []artifact.Artifact{}
		}
		return writeJSON(a.stdout, arts)
	}
	if len(arts) == 0 {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("no artifacts for run "+runID))
		return nil
	}

	t := newTable("Name", "Files", "Size", "Created")
	for _, art := range arts {
		t.Row(CmdStyle.Render(art.Name), strconv.Itoa(len(art.Files)), formatBytes(art.Size), art.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(a.stdout, t.Render())
	return nil
}

func (a *App) fetchArtifact(ctx context.Context, runID, name, dest string) error {
	ctx, store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	art, err := store.Fetch(ctx, runID, name, dest)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s (%d files, %s) to %s\n",
		SuccessStyle.Render("✓ fetched"), CmdStyle.Render(art.Name), len(art.Files), formatBytes(art.Size), dest)
	return nil
}
