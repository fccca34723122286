// Package main provides the listener-admin CLI tool for managing a running listener manager.
package main

import (
	"os"

	"github.com/sirosfoundation/go-listener-manager/cmd/listener-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
