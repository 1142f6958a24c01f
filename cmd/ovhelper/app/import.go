package app

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sebastianlutter/ollama-openvino-helper/internal/config"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/engine"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/logger"
	"github.com/sebastianlutter/ollama-openvino-helper/internal/models"
)

// ImportOptions holds options for the import command
type ImportOptions struct {
	*GlobalOptions

	// Model is the model name to import from the local store
	Model string

	// Tag is the local store tag of the download
	Tag string

	// Name overrides the name the model is registered under
	Name string

	// KeepStaging leaves the staged files in the container for inspection
	KeepStaging bool
}

// NewImportCommand creates the import command.
//
// The import command takes a model downloaded with 'ovhelper pull', copies
// it into the running container, and registers it with the Ollama server so
// it can be used for inference.
//
// Usage:
//
//	ovhelper import MODEL [--tag TAG] [--name NAME] [--keep-staging]
//
// Examples:
//
//	# Import a pulled model under its catalog name
//	ovhelper import qwen2.5-7b-instruct
//
//	# Register under a different name
//	ovhelper import qwen2.5-7b-instruct --name qwen
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for importing models
func NewImportCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ImportOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "import MODEL",
		Short: "Import a downloaded model into the running server",
		Long: `Import a downloaded model into the running Ollama server.

The model files are copied into the container under ` + models.StagingDir + `,
a Modelfile pointing at the staged files is generated, and 'ollama create'
registers the model with the server. The registration is verified through
the server API before the staging files are removed.

The model must have been downloaded first ('ovhelper pull') and the
container must be running ('ovhelper run').`,
		Example: `  ovhelper import qwen2.5-7b-instruct
  ovhelper import qwen2.5-7b-instruct --name qwen`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Model = args[0]
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()
			return runImport(cmd.Context(), opts, cfg, eng)
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", "latest",
		"local store tag of the download")
	cmd.Flags().StringVar(&opts.Name, "name", "",
		"name to register the model under (default: the model name)")
	cmd.Flags().BoolVar(&opts.KeepStaging, "keep-staging", false,
		"keep the staged files in the container after import")

	return cmd
}

// runImport executes the import command logic.
func runImport(ctx context.Context, opts *ImportOptions, cfg *config.Config, eng engine.Engine) error {
	catalog, err := models.LoadCatalog(cfg.CatalogPath())
	if err != nil {
		return err
	}
	entry, err := catalog.Resolve(opts.Model)
	if err != nil {
		return err
	}

	store := models.NewStore(cfg.ModelsDir())
	if !store.Exists(entry.Name, opts.Tag) {
		return fmt.Errorf("model %s:%s is not downloaded. Pull it first with: %s pull %s",
			entry.Name, opts.Tag, cliName, opts.Model)
	}

	servedName := entry.Name
	if opts.Name != "" {
		servedName = opts.Name
	}
	if strings.ContainsAny(servedName, "/ \t") {
		return fmt.Errorf("invalid model name %q", servedName)
	}

	target, err := findRunningContainer(ctx, cfg, eng)
	if err != nil {
		return err
	}

	stagingDir := path.Join(models.StagingDir, servedName)
	modelDir := models.StagingModelDir(servedName)

	fmt.Printf("Staging %s:%s into container %s...\n", entry.Name, opts.Tag, shortID(target.ID))
	if err := execChecked(ctx, eng, target.ID, []string{"mkdir", "-p", modelDir}); err != nil {
		return err
	}

	tarStream, err := models.TarModelDir(store.Dir(entry.Name, opts.Tag))
	if err != nil {
		return fmt.Errorf("failed to archive model files: %w", err)
	}
	err = eng.CopyTo(ctx, target.ID, modelDir, tarStream)
	tarStream.Close()
	if err != nil {
		return fmt.Errorf("failed to copy model files into container: %w", err)
	}

	modelfile := models.Modelfile(modelDir, entry)
	modelfileTar, err := models.SingleFileTar("Modelfile", modelfile)
	if err != nil {
		return err
	}
	if err := eng.CopyTo(ctx, target.ID, stagingDir, modelfileTar); err != nil {
		return fmt.Errorf("failed to copy Modelfile into container: %w", err)
	}

	fmt.Printf("Registering %s with the server...\n", servedName)
	createCmd := []string{"ollama", "create", servedName, "-f", models.StagingModelfilePath(servedName)}
	code, err := eng.Exec(ctx, target.ID, createCmd, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to run ollama create: %w", err)
	}
	if code != 0 {
		logger.Error("ollama create exited with status %d", code)
		return &ExitCodeError{Code: code}
	}

	if err := verifyServed(ctx, cfg, servedName); err != nil {
		return err
	}

	if !opts.KeepStaging {
		if err := execChecked(ctx, eng, target.ID, []string{"rm", "-rf", stagingDir}); err != nil {
			logger.Warn("failed to clean up staging directory %s: %v", stagingDir, err)
		}
	} else {
		fmt.Printf("Staging files kept at %s\n", stagingDir)
	}

	fmt.Printf("\n✓ Imported %s:%s as %s\n", entry.Name, opts.Tag, servedName)
	fmt.Printf("Chat with it: %s chat %s\n", cliName, servedName)

	return nil
}

// findRunningContainer returns the running container of the managed image,
// or an actionable error when there is none.
func findRunningContainer(ctx context.Context, cfg *config.Config, eng engine.Engine) (engine.ContainerInfo, error) {
	containers, err := eng.ListContainers(ctx, cfg.ImageRef())
	if err != nil {
		return engine.ContainerInfo{}, fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range containers {
		if c.Running() {
			return c, nil
		}
	}
	return engine.ContainerInfo{}, fmt.Errorf("no running %s container. Start one with: %s run",
		cfg.ImageRef(), cliName)
}

// execChecked runs a command in the container and treats a non-zero exit
// status as an error.
func execChecked(ctx context.Context, eng engine.Engine, containerID string, cmd []string) error {
	code, err := eng.Exec(ctx, containerID, cmd, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to exec %s: %w", strings.Join(cmd, " "), err)
	}
	if code != 0 {
		return fmt.Errorf("%s exited with status %d", strings.Join(cmd, " "), code)
	}
	return nil
}

// verifyServed confirms the server lists the model after registration.
func verifyServed(ctx context.Context, cfg *config.Config, servedName string) error {
	client := getOllamaClient(cfg)
	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ok, err := client.HasModel(verifyCtx, servedName)
	if err != nil {
		return fmt.Errorf("model was created but the server could not be queried to verify it: %w", err)
	}
	if !ok {
		return fmt.Errorf("model %s does not appear in the server's model list after import", servedName)
	}
	return nil
}
