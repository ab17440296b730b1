package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgerunner/engine/pkg/engine/resolver"
)

func newResolveCmd() *cobra.Command {
	var modelsPath string
	cmd := &cobra.Command{
		Use:   "resolve MODEL_ID",
		Short: "Resolve a model id to a local entry point path",
		Long: `Resolve a model id against a local model directory, without
needing a running engine-service. Useful to sanity-check a models path
before pointing engine-service at it.

Examples:
  enginectl resolve ggml-base.en
  enginectl resolve --models-path /srv/models llama3.2-3b.gguf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], modelsPath)
		},
	}
	cmd.Flags().StringVar(&modelsPath, "models-path", envDefault("ENGINE_MODELS_PATH", "."), "root directory to resolve model ids against")
	return cmd
}

func runResolve(cmd *cobra.Command, modelID, modelsPath string) error {
	r := resolver.NewLocalPathResolver(modelsPath)
	handle, err := r.ResolveModel(cmd.Context(), modelID)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", modelID, err)
	}

	fmt.Fprintf(os.Stdout, "entry_point_path: %s\n", handle.EntryPointPath)
	for k, v := range handle.Metadata {
		fmt.Fprintf(os.Stdout, "%s: %v\n", k, v)
	}
	return nil
}
