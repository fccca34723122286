package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the persisted server set",
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist the active servers",
	Long:  `Save the active servers so they are reopened when the manager restarts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("POST", "/api/config/save", nil)
		if err != nil {
			return err
		}

		var resp struct {
			Saved int `json:"saved"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		success("Saved %d servers.", resp.Saved)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSaveCmd)
}
