// Package documents provides the document store for version documents and
// student profiles, backed by MongoDB. Replaces use a revision token so the
// lifecycle manager can run optimistic concurrency over whole documents.
package documents

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/config"
)

// Client wraps a mongo database handle plus the operation timeout.
type Client struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	logger  *zap.Logger
}

// Connect opens the document store connection and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DocumentsConfig, logger *zap.Logger) (*Client, error) {
	mc, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := mc.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping document store: %w", err)
	}

	logger.Info("document store connected", zap.String("database", cfg.Database))
	return &Client{
		client:  mc,
		db:      mc.Database(cfg.Database),
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// Versions returns the version-document collection store.
func (c *Client) Versions() *VersionStore {
	return &VersionStore{
		coll:    c.db.Collection("assignment_versions"),
		timeout: c.timeout,
		logger:  c.logger.With(zap.String("component", "version_store")),
	}
}

// Profiles returns the student-profile collection store.
func (c *Client) Profiles() *ProfileStore {
	return &ProfileStore{
		coll:    c.db.Collection("student_profiles"),
		timeout: c.timeout,
		logger:  c.logger.With(zap.String("component", "profile_store")),
	}
}

// Close disconnects from the document store.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
