package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	qdrant "github.com/qdrant/go-client/qdrant"

	"vectorgate/internal/config"
)

// DatastoreProbe checks datastore health over its gRPC API. It backs the
// readiness endpoint and is independent of the proxied HTTP traffic.
type DatastoreProbe struct {
	api    *qdrant.Client
	logger *slog.Logger
}

// NewDatastoreProbe returns nil when datastore.grpc_port is not configured.
// The gRPC connection is established lazily on the first check.
func NewDatastoreProbe(cfg *config.Config, logger *slog.Logger) (*DatastoreProbe, error) {
	if cfg.Datastore.GRPCPort == 0 {
		return nil, nil
	}

	u, err := url.Parse(cfg.Datastore.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse datastore base_url: %w", err)
	}

	api, err := qdrant.NewClient(&qdrant.Config{
		Host:                   u.Hostname(),
		Port:                   cfg.Datastore.GRPCPort,
		APIKey:                 cfg.Datastore.APIKey,
		UseTLS:                 u.Scheme == "https",
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create datastore probe: %w", err)
	}

	return &DatastoreProbe{
		api:    api,
		logger: logger.With("component", "datastore_probe"),
	}, nil
}

// Check returns the datastore version if it reports healthy.
func (p *DatastoreProbe) Check(ctx context.Context) (string, error) {
	reply, err := p.api.HealthCheck(ctx)
	if err != nil {
		return "", fmt.Errorf("datastore health check: %w", err)
	}
	p.logger.Debug("datastore healthy", "title", reply.GetTitle(), "version", reply.GetVersion())
	return reply.GetVersion(), nil
}

// Close releases the gRPC connection.
func (p *DatastoreProbe) Close() error {
	if p == nil {
		return nil
	}
	return p.api.Close()
}
