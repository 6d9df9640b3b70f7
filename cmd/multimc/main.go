// Command multimc runs the multiplexing game proxy: one listener for
// real clients, N upstream backend connections per player, and the
// relay core in between.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaycraft/multimc/internal/admin"
	"github.com/relaycraft/multimc/internal/backend"
	"github.com/relaycraft/multimc/internal/config"
	"github.com/relaycraft/multimc/internal/console"
	"github.com/relaycraft/multimc/internal/logging"
	"github.com/relaycraft/multimc/internal/mapping"
	"github.com/relaycraft/multimc/internal/relay"
	"github.com/relaycraft/multimc/internal/store"
	"github.com/relaycraft/multimc/internal/zone"
)

// BuildVersion is stamped by the release build; "dev" otherwise.
var BuildVersion = "dev"

func sigIntHandler(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logging.L().Infof("%v received; shutting down", s)
	case <-ctx.Done():
	}
	signal.Stop(sig)
	cancel()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the proxy configuration file")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(BuildVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(cfg.SimulationServers) == 0 {
		fmt.Fprintln(os.Stderr, "config: at least one simulation server is required")
		os.Exit(1)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	servers := make([]backend.Server, len(cfg.SimulationServers))
	for i, b := range cfg.SimulationServers {
		servers[i] = backend.Server{ID: mapping.BackendID(i), Name: b.Name, Address: b.Address}
	}
	registry := backend.New(servers, cfg.CircuitBreaker)

	zoner, err := buildZoner(cfg, servers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Persistence.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	st.StartAutoSave(cfg.SaveInterval())

	state := relay.NewProxyState(cfg, registry, zoner, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sigIntHandler(ctx, cancel)
	go func() {
		select {
		case <-state.ShutdownRequested():
			cancel()
		case <-ctx.Done():
		}
	}()

	watcher, err := config.WatchConfig(*configPath, func(next *config.Config) {
		config.CheckRestartRequired(cfg, next)
		if err := logging.Init(next.Logging); err != nil {
			logging.L().Warningf("config: logging reload failed: %v", err)
		}
	})
	if err != nil {
		logging.L().Warningf("config: hot reload unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	adminSrv := admin.New(state)
	go func() {
		if err := adminSrv.ListenAndServe(ctx, cfg.Admin.ListenAddr, cfg.Admin.MetricPath); err != nil {
			logging.L().Errorf("admin server: %v", err)
		}
	}()
	go console.Run(ctx, os.Stdin, state)
	go relay.RunSupervisors(ctx, state)

	logging.L().Infof("multimc %s starting: %d backend(s), protocol %d", BuildVersion, len(servers), cfg.Protocol)
	err = relay.Serve(ctx, state)

	state.Shutdown()
	if closeErr := st.Close(); closeErr != nil {
		logging.L().Errorf("position store: final save failed: %v", closeErr)
	}
	if err != nil {
		logging.L().Errorf("%v", err)
		os.Exit(1)
	}
}

// buildZoner constructs the configured zoning strategy over the
// configured backend set.
func buildZoner(cfg *config.Config, servers []backend.Server) (zone.Zoner, error) {
	byName := make(map[string]mapping.BackendID, len(servers))
	ids := make([]mapping.BackendID, len(servers))
	for i, s := range servers {
		byName[s.Name] = s.ID
		ids[i] = s.ID
	}

	switch cfg.Zoning.Strategy {
	case "rendezvous":
		return zone.NewRendezvousZoner(ids), nil
	case "static":
		z := &zone.StaticZoner{Default: ids[0]}
		if cfg.Zoning.Default != "" {
			id, ok := byName[cfg.Zoning.Default]
			if !ok {
				return nil, fmt.Errorf("zoning: unknown default backend %q", cfg.Zoning.Default)
			}
			z.Default = id
		}
		for _, e := range cfg.Zoning.Zones {
			id, ok := byName[e.Backend]
			if !ok {
				return nil, fmt.Errorf("zoning: unknown backend %q", e.Backend)
			}
			z.Entries = append(z.Entries, zone.ZoneEntry{
				Backend:  id,
				Rect:     zone.Rectangle{MinX: e.MinX, MinZ: e.MinZ, MaxX: e.MaxX, MaxZ: e.MaxZ},
				Inverted: e.Inverted,
			})
		}
		return z, nil
	default:
		return nil, fmt.Errorf("zoning: unknown strategy %q", cfg.Zoning.Strategy)
	}
}
