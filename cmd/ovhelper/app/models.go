package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/models"
)

// ModelsOptions holds options for the models command
type ModelsOptions struct {
	*GlobalOptions

	// Local shows only the local model store
	Local bool

	// Served shows only the models registered with the server
	Served bool
}

// NewModelsCommand creates the models command.
//
// The models command lists the model catalog, the local download store, and
// the models the running Ollama server currently serves.
//
// Usage:
//
//	ovhelper models [--local] [--served]
//
// Examples:
//
//	# Show catalog, local store, and served models
//	ovhelper models
//
//	# Show only downloaded models
//	ovhelper models --local
//
//	# Show only what the server serves
//	ovhelper models --served
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for listing models
func NewModelsCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ModelsOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List catalog, downloaded, and served models",
		Long: `List models known to the helper.

Without flags, three sections are shown: the catalog of models that can be
pulled, the local store of downloaded models, and the models the running
Ollama server serves. The server section is best-effort; an unreachable
server is reported but does not fail the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runModels(cmd.Context(), opts, cfg)
		},
	}

	cmd.Flags().BoolVar(&opts.Local, "local", false,
		"show only the local model store")
	cmd.Flags().BoolVar(&opts.Served, "served", false,
		"show only the models the server serves")

	return cmd
}

// runModels executes the models command logic.
func runModels(ctx context.Context, opts *ModelsOptions, cfg *config.Config) error {
	showAll := !opts.Local && !opts.Served

	store := models.NewStore(cfg.ModelsDir())

	if showAll {
		catalog, err := models.LoadCatalog(cfg.CatalogPath())
		if err != nil {
			return err
		}
		printCatalogSection(catalog, store)
	}

	if showAll || opts.Local {
		if err := printLocalSection(store); err != nil {
			return err
		}
	}

	if showAll || opts.Served {
		printServedSection(ctx, cfg)
	}

	return nil
}

// printCatalogSection lists the pullable models and whether each one has
// been downloaded already.
func printCatalogSection(catalog *models.Catalog, store *models.Store) {
	fmt.Println("Catalog:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "  NAME\tPARAMETERS\tQUANT\tPULLED")
	for _, entry := range catalog.Entries() {
		params := "-"
		if entry.Parameters > 0 {
			params = fmt.Sprintf("%.1fB", entry.Parameters)
		}
		pulled := "-"
		if store.Exists(entry.Name, "latest") {
			pulled = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", entry.Name, params, entry.Quantization, pulled)
	}
	w.Flush()
	fmt.Println()
}

// printLocalSection lists the downloaded models in the local store.
func printLocalSection(store *models.Store) error {
	stored, err := store.List()
	if err != nil {
		return err
	}

	fmt.Println("Local store:")
	if len(stored) == 0 {
		fmt.Printf("  (none)  Download one with: %s pull NAME\n\n", cliName)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTAG\tSIZE\tMODIFIED")
	for _, m := range stored {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s ago\n",
			m.Name, m.Tag,
			units.HumanSize(float64(m.Size)),
			units.HumanDuration(time.Since(m.ModTime)))
	}
	w.Flush()
	fmt.Println()
	return nil
}

// printServedSection lists the models the Ollama server serves. Failures
// are reported but never fatal: the server being down is a valid state.
func printServedSection(ctx context.Context, cfg *config.Config) {
	fmt.Println("Served by Ollama:")

	client := getOllamaClient(cfg)
	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	served, err := client.Tags(queryCtx)
	if err != nil {
		fmt.Printf("  (server not reachable at %s)\n", cfg.OllamaURL())
		logger.Debug("model list query failed: %v", err)
		return
	}
	if len(served) == 0 {
		fmt.Printf("  (none)  Import one with: %s import NAME\n", cliName)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "  NAME\tSIZE\tMODIFIED")
	for _, m := range served {
		fmt.Fprintf(w, "  %s\t%s\t%s ago\n",
			m.Name,
			units.HumanSize(float64(m.Size)),
			units.HumanDuration(time.Since(m.ModifiedAt)))
	}
	w.Flush()
}
