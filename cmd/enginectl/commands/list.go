package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/edgerunner/engine/pkg/engine"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List runners registered with the engine service",
		Long: `List every runner currently registered with a running engine-service.

Examples:
  enginectl list
  enginectl ls --addr http://localhost:8089`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	}
	return cmd
}

func runList(cmd *cobra.Command) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, addr+"/v1/runners", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing runners: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine-service returned %s", resp.Status)
	}

	var descriptors []engine.RunnerDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptors); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(descriptors) == 0 {
		cmd.Println("No runners registered")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"NAME", "VENDOR", "PRIORITY", "CAPABILITIES", "ENABLED", "DEFAULT MODEL"}),
	)

	for _, d := range descriptors {
		caps := make([]string, 0, len(d.Capabilities))
		for _, c := range d.Capabilities {
			caps = append(caps, string(c))
		}
		table.Append([]string{
			d.Name,
			string(d.Vendor),
			fmt.Sprintf("%d", d.Priority),
			strings.Join(caps, ","),
			fmt.Sprintf("%t", d.Enabled),
			d.DefaultModelID,
		})
	}

	table.Render()
	return nil
}
