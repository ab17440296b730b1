package commands

import (
	"bufio"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the engine service's current processing state",
		Long: `Show the engine service's service-state stream (Ready /
Processing(n) / Downloading / Error).

By default prints the current state and exits; --follow keeps the
connection open and prints every subsequent transition.

Examples:
  enginectl state
  enginectl state --follow`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming state transitions")
	return cmd
}

func runState(cmd *cobra.Command, follow bool) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, addr+"/v1/state", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to engine-service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine-service returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimPrefix(scanner.Text(), "data: ")
		if line == "" {
			continue
		}
		cmd.Println(line)
		if !follow {
			return nil
		}
	}
	return scanner.Err()
}
