// Command raftserved stands up one raftcore node: durable log and
// term/vote storage, a peer transport, and the client-facing HTTP API,
// then drives the node's election/heartbeat clock on a fixed-interval
// ticker. This wiring has no teacher analog (the retrieved teacher
// slice carried no cmd/ package) so it follows the ambient "load flags,
// open stores, start server, loop" shape common across the pack's
// service-style repos.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quorumkit/raftcore/internal/api"
	"github.com/quorumkit/raftcore/internal/config"
	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftbus"
	"github.com/quorumkit/raftcore/internal/raftlog"
	"github.com/quorumkit/raftcore/internal/raftnode"
	"github.com/quorumkit/raftcore/internal/raftstore"
	"github.com/quorumkit/raftcore/internal/statemachine"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("raftserved: bad configuration")
	}
	if cfg.ID == "" {
		log.Fatal().Msg("raftserved: -id is required")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("raftserved: cannot create data directory")
	}

	bootstrap := &raft.ClusterConfig{Peers: map[string]raft.Peer{
		cfg.ID: {ID: cfg.ID, Addr: cfg.ClientAddr, Voting: true},
	}}
	for _, addr := range cfg.PeerAddrs {
		bootstrap.Peers[addr] = raft.Peer{ID: addr, Addr: addr, Voting: true}
	}

	logStore, err := raftlog.OpenBoltLog(cfg.LogPath(), bootstrap)
	if err != nil {
		log.Fatal().Err(err).Msg("raftserved: failed to open log")
	}
	defer logStore.Close()

	store, err := raftstore.OpenBoltStore(cfg.StorePath())
	if err != nil {
		log.Fatal().Err(err).Msg("raftserved: failed to open store")
	}
	defer store.Close()

	transport := raftbus.NewLossyTransport(0, nil)
	bus := raftbus.New(transport)
	sm := statemachine.NewMemStateMachine()

	node, err := raftnode.New(raftnode.Config{
		ID:      cfg.ID,
		Store:   store,
		Log:     logStore,
		Bus:     bus,
		SM:      sm,
		TickMin: cfg.TickMin,
		TickMax: cfg.TickMax,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("raftserved: failed to start node")
	}
	transport.Register(cfg.ID, node.Handler)

	srv := &http.Server{
		Addr:    cfg.ClientAddr,
		Handler: api.NewEngine(&api.Server{Node: node}),
	}

	go func() {
		log.Info().Str("addr", cfg.ClientAddr).Msg("raftserved: serving client API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("raftserved: http server failed")
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			node.Tick()
		case <-done:
			log.Info().Msg("raftserved: shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = srv.Shutdown(ctx)
			cancel()
			return
		}
	}
}
