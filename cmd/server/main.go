package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/KBVE/bugwars-sub002/internal/config"
	"github.com/KBVE/bugwars-sub002/internal/persistence/eventlog"
	"github.com/KBVE/bugwars-sub002/internal/persistence/indexdb"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
	"github.com/KBVE/bugwars-sub002/internal/sim/env"
	"github.com/KBVE/bugwars-sub002/internal/sim/envgen"
	"github.com/KBVE/bugwars-sub002/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./configs/server.yaml", "config path")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Uint64("seed", 0, "world seed (overrides config when nonzero)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite harvest index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("config %s not found, using defaults", *configPath)
		} else {
			logger.Fatalf("config: %v", err)
		}
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	ctx, cancel := signalContext()
	defer cancel()

	events := eventlog.New(*dataDir)
	defer events.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "harvest.db"))
		if err != nil {
			logger.Fatalf("indexdb: %v", err)
		}
		defer idx.Close()
	}

	// World content. Pregeneration covers the square around the origin;
	// the same seed always yields the same world.
	registry := env.NewRegistry(cfg.ChunkSize, cfg.ViewDistanceChunks, cfg.HarvestRange, logger)
	gen := envgen.New(cfg.Seed, cfg.ChunkSize)
	objects := gen.GenerateArea(env.ChunkCoord{}, cfg.PregenRadius)
	for _, o := range objects {
		registry.Add(o)
	}
	logger.Printf("generated %d objects (seed=%d, radius=%d chunks)", len(objects), cfg.Seed, cfg.PregenRadius)

	hooks := ws.Hooks{
		OnHarvest: func(playerID string, res protocol.HarvestResultMsg) {
			entry := eventlog.HarvestEntry{
				PlayerID: playerID,
				ObjectID: res.ObjectID,
				Success:  res.Success,
				Code:     res.Code,
			}
			row := indexdb.HarvestRow{
				PlayerID: playerID,
				ObjectID: res.ObjectID,
				Success:  res.Success,
				Code:     res.Code,
			}
			if len(res.Resources) > 0 {
				entry.Resource = string(res.Resources[0].ResourceType)
				entry.Amount = res.Resources[0].Amount
				row.Resource = entry.Resource
				row.Amount = entry.Amount
			}
			if err := events.WriteHarvest(entry); err != nil {
				logger.Printf("event log: %v", err)
			}
			idx.RecordHarvest(row)
		},
		OnRespawn: func(objectID string) {
			if err := events.WriteRespawn(eventlog.RespawnEntry{ObjectID: objectID}); err != nil {
				logger.Printf("event log: %v", err)
			}
			idx.RecordRespawn(indexdb.RespawnRow{ObjectID: objectID})
		},
	}

	server := ws.NewServer(registry, int64(cfg.Seed), logger, hooks)
	go server.RunRespawnLoop(ctx, cfg.RespawnScanInterval.Duration)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/statz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			env.Stats
			Sessions int `json:"sessions"`
		}{registry.Stats(), server.SessionCount()})
	})
	mux.HandleFunc("/v1/ws", server.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
