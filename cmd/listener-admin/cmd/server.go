package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Server represents a server response
type Server struct {
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Mode      string `json:"mode"`
	StaticDir string `json:"static_dir,omitempty"`
	LogFile   string `json:"log_file"`
}

// ServerListResponse represents the list servers response
type ServerListResponse struct {
	Servers []Server `json:"servers"`
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage servers",
	Long:  `Commands for opening, listing and closing managed HTTP listeners.`,
}

func modeColor(format string, a ...interface{}) string {
	return color.CyanString(format, a...)
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active servers",
	Long:  `List the active servers in the order they were opened.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/api/servers", nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp ServerListResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Servers) == 0 {
			fmt.Fprintln(stdout, "No servers running.")
			return nil
		}

		headers := []string{"PORT", "NAME", "MODE", "DIRECTORY", "LOG FILE"}
		rows := make([][]string, len(resp.Servers))
		for i, s := range resp.Servers {
			rows[i] = []string{strconv.Itoa(s.Port), s.Name, s.Mode, s.StaticDir, s.LogFile}
		}
		printTable(headers, rows, map[int]func(string, ...interface{}) string{2: modeColor})
		return nil
	},
}

var (
	serverOpenName string
	serverOpenPort int
	serverOpenMode string
	serverOpenDir  string
)

var serverOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new server",
	Long: `Bind a port and start serving.

Modes:
  - simple: answers every request with a greeting and logs the request
  - static: serves the files under --dir and logs nothing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serverOpenName == "" {
			return fmt.Errorf("--name is required")
		}
		if serverOpenPort == 0 {
			return fmt.Errorf("--port is required")
		}

		client := NewClient(adminURL, adminToken)
		reqBody := map[string]interface{}{
			"name": serverOpenName,
			"port": serverOpenPort,
			"mode": serverOpenMode,
		}
		if serverOpenDir != "" {
			reqBody["static_dir"] = serverOpenDir
		}

		data, err := client.Request("POST", "/api/servers", reqBody)
		if err != nil {
			return err
		}

		success("Server '%s' listening on port %d.", serverOpenName, serverOpenPort)
		if output == "json" {
			return printJSON(data)
		}
		return nil
	},
}

var serverCloseCmd = &cobra.Command{
	Use:   "close [port]",
	Short: "Close a server",
	Long:  `Stop the server on a port and release the port.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := parsePortArg(args[0])
		if err != nil {
			return err
		}

		client := NewClient(adminURL, adminToken)
		if _, err := client.Request("DELETE", fmt.Sprintf("/api/servers/%d", port), nil); err != nil {
			return err
		}

		success("Server on port %d closed.", port)
		return nil
	},
}

func parsePortArg(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverOpenCmd)
	serverCmd.AddCommand(serverCloseCmd)

	serverOpenCmd.Flags().StringVar(&serverOpenName, "name", "", "Server name (required)")
	serverOpenCmd.Flags().IntVar(&serverOpenPort, "port", 0, "Port to bind (required)")
	serverOpenCmd.Flags().StringVar(&serverOpenMode, "mode", "simple", "Mode: simple, static")
	serverOpenCmd.Flags().StringVar(&serverOpenDir, "dir", "", "Directory to serve in static mode")
}
