package client

import (
	"log/slog"

	"vectorgate/internal/config"
	"vectorgate/internal/metrics"
)

// DatastoreClient talks to the vector datastore's HTTP API.
type DatastoreClient struct {
	*Backend
	apiKey string
}

// NewDatastoreClient creates the pooled datastore client.
func NewDatastoreClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*DatastoreClient, error) {
	b, err := NewBackend(metrics.BackendDatastore, cfg.Datastore.BackendConfig, logger, m)
	if err != nil {
		return nil, err
	}
	return &DatastoreClient{Backend: b, apiKey: cfg.Datastore.APIKey}, nil
}

// APIKey returns the configured datastore key, or empty if clients bring their own.
func (c *DatastoreClient) APIKey() string {
	return c.apiKey
}
