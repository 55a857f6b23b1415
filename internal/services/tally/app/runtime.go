package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/ballotbox/internal/platform/grpc"
	"github.com/louisbranch/ballotbox/internal/platform/timeouts"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/integrity"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/sqlite"
)

// RuntimeConfig controls tally startup and the rollup loop.
type RuntimeConfig struct {
	Port int
	// Addr overrides Port with a full listen address.
	Addr              string
	DBPath            string
	RollupInterval    time.Duration
	RollupConcurrency int
	RemovalPolicy     string
	HMACKeys          string
	HMACKeyID         string
}

// HealthServiceRollups is the health service name of the rollup worker.
const HealthServiceRollups = "tally.rollups"

const (
	defaultTallyPort = 8090
	defaultTallyDB   = "data/tally.db"
)

// OpenService opens the SQLite store at cfg.DBPath and builds a service
// over it. The caller closes the store.
func OpenService(cfg RuntimeConfig) (*Service, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultTallyDB
	}
	policy, err := hierarchy.ParseRemovalPolicy(cfg.RemovalPolicy)
	if err != nil {
		return nil, err
	}
	keyring, err := integrity.ParseKeyring(cfg.HMACKeys, cfg.HMACKeyID)
	if err != nil {
		return nil, fmt.Errorf("parse event hmac keys: %w", err)
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create tally storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath, keyring)
	if err != nil {
		return nil, fmt.Errorf("open tally sqlite store: %w", err)
	}
	service, err := New(store, Options{RemovalPolicy: policy, Keyring: keyring})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return service, nil
}

// Run serves gRPC health and runs the rollup worker until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultTallyPort
	}
	service, err := OpenService(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := service.Store().Close(); closeErr != nil {
			log.Printf("close tally sqlite store: %v", closeErr)
		}
	}()

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := platformgrpc.RegisterHealth(grpcServer, HealthServiceRollups)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		platformgrpc.Stop(grpcServer, healthServer, timeouts.Shutdown)
		if err := <-serveErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("serve gRPC: %v", err)
		}
	}()

	log.Printf("tally server listening at %v", listener.Addr())
	return NewRollupWorker(service, cfg.RollupInterval, cfg.RollupConcurrency).Run(ctx)
}
