// Package store provides the Neo4j/Memgraph query transport: scoped sessions,
// batched transactions and a single retry on lock conflicts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ooddaa/mango-sub002/pkg/cypher"
	"github.com/ooddaa/mango-sub002/pkg/metrics"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

// Config holds graph database configuration
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Client runs statement batches against the graph store. Each call acquires
// its own session and releases it before returning.
type Client struct {
	driver     neo4j.DriverWithContext
	database   string
	logger     ectologger.Logger
	newSession SessionFactory
}

// NewClient creates a new graph database client. The driver's own retry loop
// is disabled; lock conflicts are retried once by the client.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxTransactionRetryTime = 0
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver: %w", err)
	}

	c := &Client{
		driver:   driver,
		database: cfg.Database,
		logger:   logger,
	}
	c.newSession = c.driverSession
	return c, nil
}

// NewClientWithSessions creates a client over a custom session factory.
func NewClientWithSessions(factory SessionFactory, logger ectologger.Logger) *Client {
	return &Client{logger: logger, newSession: factory}
}

func (c *Client) driverSession(ctx context.Context, mode neo4j.AccessMode) Session {
	return &neo4jSession{
		sess: c.driver.NewSession(ctx, neo4j.SessionConfig{
			AccessMode:   mode,
			DatabaseName: c.database,
		}),
		mode: mode,
	}
}

// GetName implements startup.StartupDependency.
func (c *Client) GetName() string { return "graph" }

// DependsOn implements startup.StartupDependency.
func (c *Client) DependsOn() []string { return nil }

// Start verifies the database is reachable.
func (c *Client) Start(ctx context.Context) error {
	return c.VerifyConnectivity(ctx)
}

// Stop closes the driver.
func (c *Client) Stop(ctx context.Context) error {
	return c.Close(ctx)
}

// Close closes the driver connection
func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

// VerifyConnectivity checks if the database is reachable
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	return c.driver.VerifyConnectivity(ctx)
}

// Write runs statements in one write transaction.
func (c *Client) Write(ctx context.Context, statements ...cypher.Statement) ([]Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "store.Client.Write")
	defer span.End()

	return c.execute(ctx, neo4j.AccessModeWrite, statements)
}

// Read runs statements in one read transaction.
func (c *Client) Read(ctx context.Context, statements ...cypher.Statement) ([]Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "store.Client.Read")
	defer span.End()

	return c.execute(ctx, neo4j.AccessModeRead, statements)
}

func (c *Client) execute(ctx context.Context, mode neo4j.AccessMode, statements []cypher.Statement) (outcomes []Outcome, err error) {
	if len(statements) == 0 {
		return nil, nil
	}
	modeName := accessModeName(mode)

	session := c.newSession(ctx, mode)
	metrics.SessionsOpen.Inc()
	defer func() {
		metrics.SessionsOpen.Dec()
		if cerr := session.Close(ctx); cerr != nil {
			c.logger.WithContext(ctx).WithError(cerr).Warn("Failed to close graph session")
		}
	}()

	outcomes, err = session.Execute(ctx, statements)
	if err != nil && IsLockConflict(err) {
		metrics.LockRetries.Inc()
		c.logger.WithContext(ctx).WithError(err).WithField("statements", len(statements)).Warn("Lock conflict, retrying transaction once")
		outcomes, err = session.Execute(ctx, statements)
	}
	metrics.RecordStatements(modeName, len(statements), err)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"mode":       modeName,
			"statements": len(statements),
		}).Error("Graph transaction failed")
		return nil, fmt.Errorf("graph %s transaction failed: %w", modeName, err)
	}
	return outcomes, nil
}

func accessModeName(mode neo4j.AccessMode) string {
	if mode == neo4j.AccessModeRead {
		return "read"
	}
	return "write"
}

var lockCodes = []string{
	"DeadlockDetected",
	"LockClientStopped",
	"LockAcquisitionTimeout",
	"ForsetiClient",
	// memgraph
	"conflicting transactions",
}

// IsLockConflict reports whether err is the store refusing a lock because a
// concurrent transaction holds it.
func IsLockConflict(err error) bool {
	if err == nil {
		return false
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return isLockCode(neoErr.Code) || isLockCode(neoErr.Msg)
	}
	var limit *neo4j.TransactionExecutionLimit
	if errors.As(err, &limit) {
		for _, cause := range limit.Errors {
			if IsLockConflict(cause) {
				return true
			}
		}
	}
	return false
}

func isLockCode(s string) bool {
	for _, code := range lockCodes {
		if strings.Contains(s, code) {
			return true
		}
	}
	return false
}
