// Package cmd contains all CLI commands for listener-admin.
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	adminURL   string
	adminToken string
	output     string
)

// stdout is where commands write their results
var stdout io.Writer = os.Stdout

// Client wraps HTTP client for admin API calls
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new admin API client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Request makes an HTTP request to the admin API
func (c *Client) Request(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// printJSON formats and prints JSON output
func printJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var formatted bytes.Buffer
	if err := json.Indent(&formatted, data, "", "  "); err != nil {
		// If it's not valid JSON, just print as-is
		fmt.Fprintln(stdout, string(data))
		return nil
	}
	fmt.Fprintln(stdout, formatted.String())
	return nil
}

// printTable prints data in a simple table format. Cells of a column listed in
// colors are colorized after padding so escape codes don't break alignment.
func printTable(headers []string, rows [][]string, colors map[int]func(string, ...interface{}) string) {
	// Calculate column widths
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header
	for i, h := range headers {
		fmt.Fprintf(stdout, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(stdout)

	// Print separator
	for i := range headers {
		fmt.Fprintf(stdout, "%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(stdout)

	// Print rows
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				continue
			}
			padded := fmt.Sprintf("%-*s", widths[i], cell)
			if colorize, ok := colors[i]; ok {
				padded = colorize("%s", padded)
			}
			fmt.Fprintf(stdout, "%s  ", padded)
		}
		fmt.Fprintln(stdout)
	}
}

// success prints a confirmation line
func success(format string, a ...interface{}) {
	fmt.Fprintln(stdout, color.GreenString(format, a...))
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "listener-admin",
	Short: "CLI tool for managing a listener manager",
	Long: `listener-admin is a command-line tool for managing the HTTP listeners
of a running listener manager through its admin API.

It provides commands for:
  - Servers: open, list and close listeners
  - Logs: show, filter, clear, export and import per-port request logs
  - Config: persist the active servers
  - Events: watch request events as they happen

Examples:
  # List active servers
  listener-admin server list

  # Open a hello server on port 8080
  listener-admin server open --name api --port 8080

  # Serve a directory on port 8081
  listener-admin server open --name site --port 8081 --mode static --dir ./public

  # Show requests to port 8080 containing "favicon"
  listener-admin logs show 8080 --query favicon

Environment Variables:
  LISTENER_ADMIN_URL    Base URL of the admin API (default: http://localhost:9090)
  LISTENER_ADMIN_TOKEN  Admin API bearer token`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&adminURL, "url", "u", getEnvOrDefault("LISTENER_ADMIN_URL", "http://localhost:9090"), "Admin API base URL")
	rootCmd.PersistentFlags().StringVarP(&adminToken, "token", "t", os.Getenv("LISTENER_ADMIN_TOKEN"), "Admin API bearer token")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
