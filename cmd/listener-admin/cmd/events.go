package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// EventFrame is one message of the event stream
type EventFrame struct {
	Type  string `json:"type"`
	Event struct {
		ID         string `json:"id"`
		Port       int    `json:"port"`
		ServerName string `json:"server_name"`
		Text       string `json:"text"`
	} `json:"event"`
	Line string `json:"line"`
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow request events",
}

var eventsWatchPort int

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print request events as they happen",
	Long:  `Stream request events from every server, or from one port with --port, until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return watchEvents(ctx, adminURL, adminToken, eventsWatchPort, printEvent)
	},
}

// eventsURL turns the admin base URL into the WebSocket URL of the event stream
func eventsURL(baseURL string, port int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid admin URL: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported admin URL scheme %q", u.Scheme)
	}
	u.Path = u.Path + "/api/events"
	if port != 0 {
		q := u.Query()
		q.Set("port", strconv.Itoa(port))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// watchEvents reads frames until ctx is done or the server closes the stream
func watchEvents(ctx context.Context, baseURL, token string, port int, handle func(EventFrame, []byte)) error {
	wsURL, err := eventsURL(baseURL, port)
	if err != nil {
		return err
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to event stream (%d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("event stream closed: %w", err)
		}

		var frame EventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		handle(frame, data)
	}
}

func printEvent(frame EventFrame, raw []byte) {
	if output == "json" {
		fmt.Fprintln(stdout, string(raw))
		return
	}
	fmt.Fprintf(stdout, "%s %s\n", color.YellowString("%-6d", frame.Event.Port), frame.Line)
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)

	eventsWatchCmd.Flags().IntVarP(&eventsWatchPort, "port", "p", 0, "Only show events of this port")
}
