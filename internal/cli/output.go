package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// CLIResponse is the envelope printed in json format.
type CLIResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

func writeResult(cmd *cobra.Command, opts *RootOptions, data any, text string) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(out, text)
	return err
}
