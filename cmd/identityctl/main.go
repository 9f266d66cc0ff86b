// Command identityctl is the operator tool for the identity service.
//
//	identityctl <command> [flags] [config flags]
//
// Store commands read the same configuration as the server (JSON file,
// environment, flags); remote commands dial the server's gRPC address.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/identity/internal/admin/cli"
	"github.com/dmitrijs2005/identity/internal/client/rpc"
	"github.com/dmitrijs2005/identity/internal/logging"
	"github.com/dmitrijs2005/identity/internal/netx"
	"github.com/dmitrijs2005/identity/internal/server"
	"github.com/dmitrijs2005/identity/internal/server/config"
	"github.com/dmitrijs2005/identity/internal/server/events"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	var name string
	if len(args) > 0 {
		name = args[0]
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}
	logger := logging.NewJSON(os.Stderr, cfg.LogLevel)

	var env cli.Env

	switch cli.CommandNeeds(name) {
	case cli.NeedsStore:
		st, err := server.OpenStore(ctx, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "database:", err)
			return 1
		}
		defer st.Close()

		pub, err := events.NewPublisher(events.BusOptions{
			Kind:         cfg.EventBus,
			KafkaBrokers: cfg.KafkaBrokers,
			AMQPURL:      cfg.AMQPURL,
		}, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "event bus:", err)
			return 1
		}
		dispatcher := events.NewDispatcher(pub, logger, events.DispatcherOptions{Workers: 1, Buffer: 16})
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = dispatcher.Close(closeCtx)
		}()

		identity, err := server.NewIdentityService(cfg, st, dispatcher, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		env.Store = st
		env.Identity = identity

	case cli.NeedsRPC:
		client, err := rpc.NewIdentityClient(netx.DialTarget(cfg.EndpointAddrGRPC))
		if err != nil {
			fmt.Fprintln(os.Stderr, "grpc:", err)
			return 1
		}
		defer client.Close()
		env.RPC = client
	}

	if err := cli.New(env, os.Stdin, os.Stdout).Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
