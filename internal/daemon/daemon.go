// Package daemon wires every coordinator component together and owns
// the process lifecycle: startup order, graceful shutdown, and the
// background loops (heartbeat reaper, reputation decay, mDNS).
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/iris-network/coordinator/internal/aggregator"
	"github.com/iris-network/coordinator/internal/api"
	"github.com/iris-network/coordinator/internal/classifier"
	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/discovery"
	"github.com/iris-network/coordinator/internal/orchestrator"
	"github.com/iris-network/coordinator/internal/protocol"
	"github.com/iris-network/coordinator/internal/registry"
	"github.com/iris-network/coordinator/internal/reputation"
	"github.com/iris-network/coordinator/internal/selection"
	"github.com/iris-network/coordinator/internal/store"
	"github.com/iris-network/coordinator/internal/stream"
)

// Daemon holds every long-lived component of a running coordinator.
type Daemon struct {
	Config config.Config

	db         *store.DB
	registry   *registry.Registry
	reputation *reputation.Engine
	mux        *stream.Multiplexer
	hub        *protocol.Hub
	orch       *orchestrator.Orchestrator
	httpServer *http.Server
	advert     *discovery.Advertiser

	stopDecay chan struct{}
}

// New loads configuration from path (empty for defaults-only) and
// constructs every component without starting network listeners.
func New(path string) (*Daemon, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := log.New(os.Stdout, "[Iris] ", log.LstdFlags)

	db, err := store.Open(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	repEngine, err := reputation.New(cfg.Reputation, db, log.New(os.Stdout, "[Reputation] ", log.LstdFlags))
	if err != nil {
		return nil, fmt.Errorf("init reputation engine: %w", err)
	}

	reg := registry.New(cfg.Worker, db, nil, log.New(os.Stdout, "[Registry] ", log.LstdFlags))
	reg.SetScoreSource(repEngine.Score)
	reg.SetReputationHooks(repEngine.RecordUptimeHour, repEngine.RecordBrokenPromiseHours)

	mux := stream.New(cfg.Stream.QueueCapacity)
	hub := protocol.NewHub(cfg.Worker, log.New(os.Stdout, "[Protocol] ", log.LstdFlags))

	orch := orchestrator.New(orchestrator.Deps{
		Config:     cfg,
		Registry:   reg,
		Selector:   selection.New(cfg.Selection),
		Classifier: classifier.New(cfg.Classifier, nil, log.New(os.Stdout, "[Classifier] ", log.LstdFlags)),
		Aggregator: aggregator.New(cfg.Consensus, cfg.Division),
		Reputation: repEngine,
		Mux:        mux,
		Sender:     reg,
		DB:         db,
		Logger:     log.New(os.Stdout, "[Orchestrator] ", log.LstdFlags),
	})

	wireHub(hub, reg, orch)

	apiServer := api.New(orch, reg, repEngine, mux, hub, cfg.Reputation.LeaderboardSize)
	apiServer.EnableMetrics()

	d := &Daemon{
		Config:     cfg,
		db:         db,
		registry:   reg,
		reputation: repEngine,
		mux:        mux,
		hub:        hub,
		orch:       orch,
		httpServer: &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: apiServer.Handler()},
		stopDecay:  make(chan struct{}),
	}
	return d, nil
}

// wireHub connects the worker WebSocket hub to the registry and
// orchestrator: registration, heartbeats, and task-result frames.
func wireHub(hub *protocol.Hub, reg *registry.Registry, orch *orchestrator.Orchestrator) {
	hub.OnRegister = func(conn *protocol.Conn, f protocol.Frame) {
		err := reg.Register(registry.Handshake{
			NodeID:       f.NodeID,
			AccountProof: f.AccountProof,
			Capabilities: f.Capabilities,
			Conn:         conn,
		})
		conn.SendFrame(protocol.Frame{
			Type:     protocol.FrameRegisterAck,
			Accepted: err == nil,
			Reason:   reasonOrEmpty(err),
		})
	}
	hub.OnFrame = func(nodeID string, f protocol.Frame) {
		switch f.Type {
		case protocol.FrameHeartbeat:
			reg.Heartbeat(nodeID, f.Load, f.Uptime)
		default:
			orch.HandleFrame(nodeID, f)
		}
	}
	hub.OnClose = func(nodeID string) {
		reg.Disconnect(nodeID, "connection closed")
	}
}

func reasonOrEmpty(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Serve starts the HTTP listener, the reputation decay loop, and
// (when enabled) mDNS advertisement. It blocks until ctx is cancelled,
// then shuts every component down in reverse startup order.
func (d *Daemon) Serve(ctx context.Context) error {
	go d.reputation.RunDecayLoop(d.stopDecay)

	if d.Config.Discovery.MDNSEnabled {
		advert, err := discovery.Start(d.Config.Discovery.Port)
		if err != nil {
			log.Printf("[Iris] mDNS advertisement failed to start: %v", err)
		} else {
			d.advert = advert
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Iris] listening on %s", d.Config.HTTP.ListenAddr)
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		d.shutdown()
		return err
	}

	d.shutdown()
	return nil
}

func (d *Daemon) shutdown() {
	log.Println("[Iris] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.httpServer.Shutdown(shutdownCtx)

	d.advert.Stop()
	close(d.stopDecay)

	if err := d.db.Close(); err != nil {
		log.Printf("[Iris] close store: %v", err)
	}
}
