// Package engine synchronises promoted graph entities with the store. Every
// public method takes a batch and returns one result.Result per input, in
// input order.
package engine

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ooddaa/mango-sub002/pkg/candidate"
	"github.com/ooddaa/mango-sub002/pkg/cypher"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/metrics"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/store"
)

const (
	defaultConcurrency = 8
	defaultHops        = 1
)

// Runner executes statements in one transaction per call. *store.Client
// implements it.
type Runner interface {
	Write(ctx context.Context, statements ...cypher.Statement) ([]store.Outcome, error)
	Read(ctx context.Context, statements ...cypher.Statement) ([]store.Outcome, error)
}

// Publisher receives sync events after successful writes. *events.Emitter
// implements it.
type Publisher interface {
	EmitNodesMerged(ctx context.Context, nodes []*graph.Node) error
	EmitRelationshipsMerged(ctx context.Context, rels []*graph.Relationship) error
	EmitNodeUpdated(ctx context.Context, previous, updater *graph.Node) error
	EmitNodesDeleted(ctx context.Context, nodes []*graph.Node) error
	EmitRelationshipsDeleted(ctx context.Context, rels []*graph.Relationship) error
}

// VersionLock serialises updates of one node. *redis.Locker implements it.
type VersionLock interface {
	Hold(ctx context.Context, key string) (func(context.Context) error, error)
}

// Engine is the merge/sync engine.
type Engine struct {
	runner      Runner
	builder     *candidate.Builder
	logger      ectologger.Logger
	publisher   Publisher
	locker      VersionLock
	concurrency int
	hops        int
	now         func() time.Time
	newUUID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher publishes sync events after writes.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithVersionLock makes UpdateNodes hold a lock per node hash.
func WithVersionLock(l VersionLock) Option {
	return func(e *Engine) { e.locker = l }
}

// WithConcurrency bounds how many sub-requests run at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithHops sets the default depth of EnhanceNodes.
func WithHops(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.hops = n
		}
	}
}

// WithClock overrides the clock used for update and deletion stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithUUIDs overrides the `_uuid` generator.
func WithUUIDs(gen func() string) Option {
	return func(e *Engine) { e.newUUID = gen }
}

// New creates an engine. The builder promotes updaters in UpdateNodes.
func New(runner Runner, builder *candidate.Builder, logger ectologger.Logger, opts ...Option) *Engine {
	if builder == nil {
		builder = candidate.NewBuilder(nil, logger)
	}
	e := &Engine{
		runner:      runner,
		builder:     builder,
		logger:      logger,
		concurrency: defaultConcurrency,
		hops:        defaultHops,
		now:         time.Now,
		newUUID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// fanOut runs fn for 0..n-1 with bounded concurrency and waits for all of
// them. fn reports through its own result slot.
func (e *Engine) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range n {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// publish hands events to the publisher. Failures are logged by the
// publisher and never surface as results.
func (e *Engine) publish(ctx context.Context, fn func(p Publisher) error) {
	if e.publisher == nil {
		return
	}
	if err := fn(e.publisher); err != nil {
		e.logger.WithContext(ctx).WithError(err).Debug("Sync event not published")
	}
}

// finish records metrics and logs the outcome of a batch.
func (e *Engine) finish(ctx context.Context, operation string, start time.Time, results []result.Result) {
	failed := 0
	for _, r := range results {
		if r.IsSuccess() {
			continue
		}
		failed++
		metrics.RecordFailure(operation, string(r.Failure.Kind))
	}
	metrics.RecordOperation(operation, start, len(results)-failed, failed)

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"operation": operation,
		"inputs":    len(results),
		"failed":    failed,
		"duration":  time.Since(start).String(),
	})
	if failed > 0 {
		log.Warn("Graph operation completed with failures")
		return
	}
	log.Debug("Graph operation completed")
}

func summarize(st cypher.Statement, o store.Outcome) *result.Summary {
	return &result.Summary{
		Query:                st.Name,
		NodesCreated:         o.Counters.NodesCreated,
		NodesDeleted:         o.Counters.NodesDeleted,
		RelationshipsCreated: o.Counters.RelationshipsCreated,
		RelationshipsDeleted: o.Counters.RelationshipsDeleted,
		PropertiesSet:        o.Counters.PropertiesSet,
		AvailableAfterMs:     o.Counters.AvailableAfter.Milliseconds(),
	}
}

// single runs one statement and returns its outcome.
func single(ctx context.Context, run func(context.Context, ...cypher.Statement) ([]store.Outcome, error), st cypher.Statement) (store.Outcome, error) {
	outcomes, err := run(ctx, st)
	if err != nil {
		return store.Outcome{}, err
	}
	if len(outcomes) == 0 {
		return store.Outcome{}, nil
	}
	return outcomes[0], nil
}
