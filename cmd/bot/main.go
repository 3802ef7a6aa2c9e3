package main

import (
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/KBVE/bugwars-sub002/internal/client/envsync"
	"github.com/KBVE/bugwars-sub002/internal/geom"
	"github.com/KBVE/bugwars-sub002/internal/protocol"
	"github.com/KBVE/bugwars-sub002/internal/sim/action"
	"github.com/KBVE/bugwars-sub002/internal/transport/wsclient"
)

// botActor is the bot's own presence in the world.
type botActor struct {
	name string

	mu  sync.Mutex
	pos geom.Vec3
}

func (b *botActor) ID() string { return b.name }

func (b *botActor) Position() geom.Vec3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

func (b *botActor) setPosition(p geom.Vec3) {
	b.mu.Lock()
	b.pos = p
	b.mu.Unlock()
}

// inventory counts gathered resources.
type inventory struct {
	mu  sync.Mutex
	log *log.Logger
	got map[string]int
}

func (inv *inventory) AddResource(resourceType string, amount int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.got == nil {
		inv.got = map[string]int{}
	}
	inv.got[resourceType] += amount
	inv.log.Printf("inventory: +%d %s (total %d)", amount, resourceType, inv.got[resourceType])
}

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name = flag.String("name", "bot", "player name")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	actor := &botActor{name: *name}
	inv := &inventory{log: logger}
	registry := envsync.NewRegistry()

	var world *envsync.Sync
	client := wsclient.New(wsclient.Config{
		URL:        *url,
		PlayerName: *name,
	}, func(raw []byte) { world.HandleMessage(raw) }, logger)
	world = envsync.New(client, registry, inv, actor.Position, logger)

	harvest := action.NewHarvestAction(logger, action.WithCompleter(world.Completer()))
	manager := action.NewManager(actor, harvest, inv, logger)

	client.Start()
	defer client.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	const tick = 100 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			manager.Update(tick.Seconds())
			if manager.IsPerformingAction() || !client.IsConnected() {
				continue
			}
			wander(client, actor, registry, manager, logger)
		}
	}
}

// wander walks toward the nearest standing object and starts harvesting once
// it is in reach.
func wander(client *wsclient.Client, actor *botActor, registry *envsync.Registry, manager *action.Manager, logger *log.Logger) {
	target := registry.Nearest(actor.Position())
	if target == nil {
		return
	}

	pos := actor.Position()
	dist := pos.Dist(target.Position())
	if dist <= action.DefaultHarvestRange {
		if manager.StartHarvest(target) {
			logger.Printf("harvesting %s (%.1fm away)", target.ObjectID(), dist)
		}
		return
	}

	// Step toward the target; the server tracks our interest set from these
	// move updates.
	const speed = 4.0 // meters per second, at 10 ticks/s
	step := speed / 10
	if step > dist {
		step = dist
	}
	d := target.Position().Sub(pos)
	n := math.Sqrt(d.X*d.X + d.Z*d.Z)
	if n == 0 {
		return
	}
	pos.X += d.X / n * step
	pos.Z += d.Z / n * step
	actor.setPosition(pos)
	_ = client.Send(protocol.PlayerMoveMsg{
		Type:     protocol.TypePlayerMove,
		Position: pos,
	})
}
