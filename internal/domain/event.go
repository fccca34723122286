package domain

import (
	"fmt"
	"time"
)

// TimestampLayout is the layout used to prefix rendered log lines
const TimestampLayout = "2006-01-02 15:04:05"

// Event is one observed request on a listener. It is created by the listener that
// handled the request and is immutable afterwards.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Port      int       `json:"port"`
	// Instance identifies the listener run that emitted the event. A port
	// reopened later gets a new instance id.
	Instance   string `json:"instance,omitempty"`
	ServerName string `json:"server_name"`
	Text       string `json:"text"`
}

// Line renders the event as it is displayed and written to the per-port log
func (e Event) Line() string {
	return fmt.Sprintf("[%s] %s", e.Timestamp.Format(TimestampLayout), e.Text)
}
