package domain

import (
	"fmt"
	"strings"
)

// Mode selects the fixed behavior of a listener
type Mode string

const (
	// ModeSimple answers every request with a fixed text body and emits one event per request
	ModeSimple Mode = "simple"
	// ModeStatic serves a directory tree and emits no events
	ModeStatic Mode = "static"
)

// DefaultServerName is used when a restored record carries no name
const DefaultServerName = "Server"

// MinPort and MaxPort bound the TCP ports a descriptor may use
const (
	MinPort = 1
	MaxPort = 65535
)

// ParseMode parses a mode string. An empty string means ModeSimple.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSimple, "":
		return ModeSimple, nil
	case ModeStatic:
		return ModeStatic, nil
	default:
		return "", fmt.Errorf("invalid mode %q (must be simple or static)", s)
	}
}

// ServerDescriptor is the persisted identity and configuration of one listener.
// The port is the unique key across the registry.
type ServerDescriptor struct {
	Name      string `json:"name" yaml:"name" bson:"name"`
	Port      int    `json:"port" yaml:"port" bson:"port"`
	Mode      Mode   `json:"mode" yaml:"mode" bson:"mode"`
	StaticDir string `json:"static_dir,omitempty" yaml:"static_dir,omitempty" bson:"static_dir,omitempty"`
}

// Validate checks the descriptor. The returned error wraps ErrInvalidDescriptor.
func (d ServerDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDescriptor)
	}
	if d.Port < MinPort || d.Port > MaxPort {
		return fmt.Errorf("%w: port %d out of range %d-%d", ErrInvalidDescriptor, d.Port, MinPort, MaxPort)
	}
	switch d.Mode {
	case ModeSimple:
	case ModeStatic:
		if strings.TrimSpace(d.StaticDir) == "" {
			return fmt.Errorf("%w: static mode requires a static directory", ErrInvalidDescriptor)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidDescriptor, d.Mode)
	}
	return nil
}

// Normalize fills defaults for records loaded from durable storage:
// a missing name becomes DefaultServerName and a missing mode becomes ModeSimple.
func (d ServerDescriptor) Normalize() ServerDescriptor {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		d.Name = DefaultServerName
	}
	if m, err := ParseMode(string(d.Mode)); err == nil {
		d.Mode = m
	}
	if d.Mode != ModeStatic {
		d.StaticDir = ""
	}
	return d
}

// String returns a short human-readable form, e.g. "api (port 8080, simple)"
func (d ServerDescriptor) String() string {
	return fmt.Sprintf("%s (port %d, %s)", d.Name, d.Port, d.Mode)
}
