package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

// LogsResponse represents the log listing response
type LogsResponse struct {
	Port  int      `json:"port"`
	Query string   `json:"query,omitempty"`
	Count int      `json:"count"`
	Lines []string `json:"lines"`
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Manage request logs",
	Long:  `Commands for the per-port request logs of active servers.`,
}

var logsShowQuery string

var logsShowCmd = &cobra.Command{
	Use:   "show [port]",
	Short: "Show the request log of a server",
	Long:  `Print the request log of a server, optionally only lines containing --query (case-insensitive).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePortArg(args[0])
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/servers/%d/logs", port)
		if logsShowQuery != "" {
			path += "?q=" + url.QueryEscape(logsShowQuery)
		}

		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", path, nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp LogsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(stdout, line)
		}
		return nil
	},
}

var logsClearYes bool

var logsClearCmd = &cobra.Command{
	Use:   "clear [port]",
	Short: "Clear the request log of a server",
	Long:  `Empty the request log of a server, in memory and on disk. Requires --yes.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePortArg(args[0])
		if err != nil {
			return err
		}
		if !logsClearYes {
			return fmt.Errorf("refusing to clear the log of port %d without --yes", port)
		}

		client := NewClient(adminURL, adminToken)
		if _, err := client.Request("DELETE", fmt.Sprintf("/api/servers/%d/logs?confirm=true", port), nil); err != nil {
			return err
		}

		success("Log of port %d cleared.", port)
		return nil
	},
}

var logsExportCmd = &cobra.Command{
	Use:   "export [port] [path]",
	Short: "Export the request log of a server",
	Long: `Copy the on-disk request log of a server to a path on the manager host.
Relative paths are resolved by the manager against its log transfer directory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePortArg(args[0])
		if err != nil {
			return err
		}
		dest := args[1]

		client := NewClient(adminURL, adminToken)
		if _, err := client.Request("POST", fmt.Sprintf("/api/servers/%d/logs/export", port), map[string]string{"path": dest}); err != nil {
			return err
		}

		success("Log of port %d exported to %s.", port, dest)
		return nil
	},
}

var logsImportCmd = &cobra.Command{
	Use:   "import [port] [path]",
	Short: "Replace the displayed request log with a file",
	Long: `Replace the in-memory request log of a server with the non-empty lines
of a file on the manager host. Relative paths are resolved by the manager
against its log transfer directory. The on-disk log is not modified.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePortArg(args[0])
		if err != nil {
			return err
		}
		src := args[1]

		client := NewClient(adminURL, adminToken)
		data, err := client.Request("POST", fmt.Sprintf("/api/servers/%d/logs/import", port), map[string]string{"path": src})
		if err != nil {
			return err
		}

		var resp struct {
			Lines int `json:"lines"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		success("Loaded %d lines into the log of port %d.", resp.Lines, port)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsShowCmd)
	logsCmd.AddCommand(logsClearCmd)
	logsCmd.AddCommand(logsExportCmd)
	logsCmd.AddCommand(logsImportCmd)

	logsShowCmd.Flags().StringVarP(&logsShowQuery, "query", "q", "", "Only show lines containing this text")
	logsClearCmd.Flags().BoolVarP(&logsClearYes, "yes", "y", false, "Confirm clearing the log")
}
