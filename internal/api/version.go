// Package api provides the HTTP handlers of the listener manager admin API.
package api

// APIVersion represents the current API version supported by this server.
// The api_version field in /status lets clients detect available features.
const (
	// APIVersion1 is the original API version.
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// ServiceName is reported by /status
const ServiceName = "listener-manager"

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"servers",
		"logs",
		"events",
		"config",
	},
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status        string   `json:"status"`
	Service       string   `json:"service"`
	APIVersion    int      `json:"api_version"`
	Capabilities  []string `json:"capabilities,omitempty"`
	ActiveServers int      `json:"active_servers"`
	EventClients  int      `json:"event_clients"`
}
