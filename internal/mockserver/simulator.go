package mockserver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

// Simulator stands in for devices in the field: it registers a handful of
// devices and then records hits on them at random.
type Simulator struct {
	store    *Store
	interval time.Duration
	devices  int
	clock    clock.Clock
	rng      *rand.Rand
	log      *slog.Logger

	macs []string
}

func NewSimulator(store *Store, interval time.Duration, devices int, clk clock.Clock, log *slog.Logger) *Simulator {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Simulator{
		store:    store,
		interval: interval,
		devices:  devices,
		clock:    clk,
		rng:      rand.New(rand.NewSource(clk.Now().UnixNano())),
		log:      log,
	}
}

// Seed fixes the random source, for tests.
func (g *Simulator) Seed(seed int64) {
	g.rng = rand.New(rand.NewSource(seed))
}

// Start registers the simulated devices synchronously, then records hits
// until ctx is done.
func (g *Simulator) Start(ctx context.Context) {
	for i := 0; i < g.devices; i++ {
		mac := fmt.Sprintf("02:00:5E:%02X:%02X:%02X", i, g.rng.Intn(256), g.rng.Intn(256))
		d := g.store.Register(mac)
		g.macs = append(g.macs, mac)
		g.log.Debug("simulated device registered", slog.String("mac", mac), slog.Int("order", d.Order))
	}
	if len(g.macs) == 0 {
		return
	}
	go g.run(ctx)
}

func (g *Simulator) run(ctx context.Context) {
	ticker := g.clock.Ticker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *Simulator) tick() {
	mac := g.macs[g.rng.Intn(len(g.macs))]
	d, err := g.store.Hit(mac)
	if err != nil {
		g.log.Warn("simulated hit", slog.String("mac", mac), slog.Any("error", err))
		return
	}
	g.log.Debug("simulated hit", slog.String("mac", mac), slog.Int("counter", d.HitCounter))
}
