// Command buddy is the terminal client. It talks to the Record API, keeps the
// signed-in user in a snapshot file under the state directory and revalidates
// that snapshot on every start.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skryldev/findmybuddy/client"
	"github.com/Skryldev/findmybuddy/config"
	"github.com/Skryldev/findmybuddy/obs"
	"github.com/Skryldev/findmybuddy/view"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fatalf("config: %v", err)
	}

	apiURL := flag.String("api", cfg.APIURL, "Record API base URL ($API_URL)")
	stateDir := flag.String("state", cfg.StateDir, "directory holding the session snapshot ($STATE_DIR)")
	timeout := flag.Duration("timeout", 15*time.Second, "per-action network timeout")
	verbose := flag.Bool("v", false, "log gateway activity to stderr")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := obs.NewLogger(os.Stderr, cfg.Env, level)
	slog.SetDefault(logger)

	gw, err := client.New(*apiURL,
		client.WithSessionStore(client.NewFileSessionStore(*stateDir)),
		client.WithLogger(logger),
	)
	if err != nil {
		fatalf("%s", view.Message(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh := newShell(view.New(gw, logger), os.Stdin, os.Stdout, *timeout)
	if err := sh.Run(ctx); err != nil && ctx.Err() == nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
