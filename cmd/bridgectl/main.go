package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/alucardeht/chrome-bridge/internal/config"
	"github.com/alucardeht/chrome-bridge/internal/daemon"
)

const usage = `bridgectl - control a running bridged daemon

Usage:
  bridgectl status                  show bridge connection status
  bridgectl get                     show stored settings
  bridgectl set endpoint <url>      set the relay endpoint
  bridgectl set token <token>       set the auth token
  bridgectl reconnect               force a reconnect cycle
  bridgectl stop                    shut the daemon down
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := daemon.Connect(ctx, cfg.SocketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach daemon at %s: %v\n", cfg.SocketPath, err)
		os.Exit(1)
	}
	defer client.Close()

	if err := run(ctx, client, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *daemon.ControlClient, args []string) error {
	switch args[0] {
	case "status":
		result, err := client.Status(ctx)
		if err != nil {
			return err
		}
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(payload))
		return nil

	case "get":
		all, err := client.GetSettings(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(all))
		for key := range all {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s=%s\n", key, all[key])
		}
		return nil

	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: bridgectl set endpoint|token <value>")
		}
		switch args[1] {
		case "endpoint":
			return client.SetEndpoint(ctx, args[2])
		case "token":
			return client.SetToken(ctx, args[2])
		default:
			return fmt.Errorf("unknown setting %q (use endpoint or token)", args[1])
		}

	case "reconnect":
		return client.Reconnect(ctx)

	case "stop":
		return client.Shutdown(ctx)

	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}
