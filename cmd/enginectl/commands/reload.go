package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgerunner/engine/pkg/engine"
)

func newReloadCmd() *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Apply a settings change and trigger the reload manager",
		Long: `Fetch the engine service's current settings, apply any
--set CAPABILITY=RUNNER overrides, and PUT the result back, which drives
the reload manager's diff-and-reload pass over whatever changed.

Examples:
  enginectl reload
  enginectl reload --set LLM=LlamaStackLLM --set TTS=SherpaSpeech`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReload(cmd, sets)
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "CAPABILITY=RUNNER override, may be repeated")
	return cmd
}

func runReload(cmd *cobra.Command, sets []string) error {
	current, err := fetchSettings(cmd)
	if err != nil {
		return err
	}

	for _, s := range sets {
		capability, runner, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid --set value %q, expected CAPABILITY=RUNNER", s)
		}
		current.SelectedRunners[engine.Capability(capability)] = runner
	}

	body, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPut, addr+"/v1/settings", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("applying settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine-service returned %s", resp.Status)
	}

	var summary map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	cmd.Printf("reloaded: %v\n", summary["reloaded"])
	return nil
}

func fetchSettings(cmd *cobra.Command) (engine.EngineSettings, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, addr+"/v1/settings", nil)
	if err != nil {
		return engine.EngineSettings{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return engine.EngineSettings{}, fmt.Errorf("fetching settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.EngineSettings{}, fmt.Errorf("engine-service returned %s", resp.Status)
	}

	var current engine.EngineSettings
	if err := json.NewDecoder(resp.Body).Decode(&current); err != nil {
		return engine.EngineSettings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if current.SelectedRunners == nil {
		current.SelectedRunners = make(map[engine.Capability]string)
	}
	return current, nil
}
