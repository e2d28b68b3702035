// Command tierctl inspects and drives a twotier deployment configured from
// TWOTIER_* environment variables.
//
//	tierctl id
//	tierctl names
//	tierctl get <cache> <key>
//	tierctl put <cache> <key> <value>
//	tierctl evict <cache> <key>
//	tierctl clear <cache>
//	tierctl status <cache> <key>
//	tierctl serve
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unkn0wn-root/twotier/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("load config: %v", err)
	}
	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		config.Exitf("tierctl: %v", err)
	}
}
