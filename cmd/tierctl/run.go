package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/twotier"
	"github.com/unkn0wn-root/twotier/config"
	"github.com/unkn0wn-root/twotier/internal/admin"
	"github.com/unkn0wn-root/twotier/internal/otel"
)

var errUsage = errors.New("usage: tierctl id|names|get|put|evict|clear|status|serve")

// arity is the number of arguments each command takes after its name.
var arity = map[string]int{
	"id": 0, "names": 0, "serve": 0,
	"get": 2, "put": 3, "evict": 2, "clear": 1, "status": 2,
}

func run(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	n, ok := arity[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
	if len(rest) != n {
		return fmt.Errorf("%s takes %d argument(s): %w", cmd, n, errUsage)
	}

	if cmd == "id" {
		id, err := cfg.ResolveMachineID()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, id)
		return err
	}

	shutdown, err := otel.Setup(ctx, "tierctl", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	app, err := build(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	switch cmd {
	case "names":
		names, err := app.reg.Names(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	case "serve":
		return serve(ctx, cfg.AdminAddr, app)
	}

	c, err := app.reg.Cache(rest[0])
	if err != nil {
		return err
	}
	switch cmd {
	case "get":
		v, found, err := c.Get(ctx, rest[1])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s/%s: not found", rest[0], rest[1])
		}
		_, err = fmt.Fprintln(out, string(v))
		return err
	case "put":
		return c.Put(ctx, rest[1], []byte(rest[2]))
	case "evict":
		return c.Evict(ctx, rest[1])
	case "clear":
		return c.Clear(ctx)
	case "status":
		st, err := c.Status(ctx, rest[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, st)
		return err
	}
	return errUsage
}

func serve(ctx context.Context, addr string, app *app) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           admin.New(app.reg, app.log).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		app.log.Info("admin server listening", twotier.Fields{"addr": addr, "machine": app.reg.MachineID()})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
