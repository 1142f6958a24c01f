package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/models"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/modelscope"
)

// PullOptions holds options for the pull command
type PullOptions struct {
	*GlobalOptions

	// Model is the model name or ModelScope ID to download
	Model string

	// Tag is the local tag the download is stored under
	Tag string
}

// NewPullCommand creates the pull command.
//
// The pull command downloads an OpenVINO model package from ModelScope into
// the local model store, where 'ovhelper import' picks it up.
//
// Usage:
//
//	ovhelper pull MODEL [--tag TAG]
//
// Examples:
//
//	ovhelper pull qwen2.5-7b-instruct
//	ovhelper pull OpenVINO/Phi-3.5-mini-instruct-int4-ov
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for downloading models
func NewPullCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &PullOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "pull MODEL",
		Short: "Download a model from ModelScope",
		Long: `Download an OpenVINO model package from ModelScope.

MODEL is either a short name from the catalog ('ovhelper models' lists them)
or a full ModelScope repository ID like OpenVINO/Qwen2.5-7B-Instruct-int4-ov.
Files are verified against their published sha256 checksums and stored under
the models directory; interrupted downloads resume on the next pull.`,
		Example: `  ovhelper pull qwen2.5-7b-instruct
  ovhelper pull OpenVINO/Phi-3.5-mini-instruct-int4-ov`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Model = args[0]
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runPull(cmd.Context(), opts, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", "latest",
		"local tag to store the download under")

	return cmd
}

// runPull executes the pull command logic.
func runPull(ctx context.Context, opts *PullOptions, cfg *config.Config) error {
	catalog, err := models.LoadCatalog(cfg.CatalogPath())
	if err != nil {
		return err
	}
	entry, err := catalog.Resolve(opts.Model)
	if err != nil {
		return err
	}

	store := models.NewStore(cfg.ModelsDir())
	if store.Exists(entry.Name, opts.Tag) {
		fmt.Printf("Model %s:%s is already downloaded (%s)\n", entry.Name, opts.Tag, store.Dir(entry.Name, opts.Tag))
		return nil
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	fmt.Printf("Pulling %s:%s from %s...\n", entry.Name, opts.Tag, entry.SourceID)

	// Per-file progress overwrites its line; status messages get their own.
	var lastWasProgress bool
	progress := func(filename string, downloaded, total int64) {
		if total > 0 {
			percent := float64(downloaded) / float64(total) * 100
			fmt.Printf("\r%-45s %6.1f%% (%s / %s)   ",
				filename, percent,
				units.HumanSize(float64(downloaded)), units.HumanSize(float64(total)))
			lastWasProgress = true
			return
		}
		if lastWasProgress {
			fmt.Println()
			lastWasProgress = false
		}
		fmt.Println(filename)
	}

	client := modelscope.NewClient()
	err = client.DownloadModel(ctx, entry.SourceID, store.Dir(entry.Name, opts.Tag), progress)
	if lastWasProgress {
		fmt.Println()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("download interrupted; partial files are kept and resume on the next pull")
		}
		return fmt.Errorf("failed to pull %s: %w", entry.SourceID, err)
	}

	fmt.Printf("\n✓ Downloaded %s:%s to %s\n", entry.Name, opts.Tag, store.Dir(entry.Name, opts.Tag))
	fmt.Printf("Import it into a running server with: %s import %s\n", cliName, entry.Name)

	return nil
}
