package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/wayfinder/internal/catalog"
	"github.com/ShayCichocki/wayfinder/internal/tui"
	"github.com/ShayCichocki/wayfinder/internal/views"
)

var (
	catalogWorld string
	catalogOpen  []string
	catalogJSON  bool
	catalogRaw   bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the options a session would rank on a world",
	Long: `Build the option catalog for a world and print it.

By default only the desktop is open; --open opens apps first, in order.
--raw prints the token projection exactly as the ranker sees it.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().StringVar(&catalogWorld, "world", "", "Site map YAML describing the desktop (required)")
	catalogCmd.Flags().StringSliceVar(&catalogOpen, "open", nil, "Apps to open before building the catalog")
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "Print the projection as JSON")
	catalogCmd.Flags().BoolVar(&catalogRaw, "raw", false, "Print the token projection used in prompts")
	_ = catalogCmd.MarkFlagRequired("world")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	site, err := views.LoadSiteMap(catalogWorld)
	if err != nil {
		return err
	}
	ctx := context.Background()
	world := views.NewWorld(site)
	for _, app := range catalogOpen {
		if err := world.OpenApp(ctx, strings.TrimSpace(app)); err != nil {
			return fmt.Errorf("open %s: %w", app, err)
		}
	}
	windows, err := world.Windows(ctx)
	if err != nil {
		return err
	}

	c := catalog.Build(windows)
	out := cmd.OutOrStdout()
	switch {
	case catalogJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(c.Projection())
	case catalogRaw:
		fmt.Fprintln(out, c.Render())
	default:
		fmt.Fprintln(out, tui.RenderCatalog(c.Options()))
	}
	return nil
}
