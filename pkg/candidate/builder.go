package candidate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/template"
	"github.com/ooddaa/mango-sub002/pkg/tracing"
)

const defaultMaxDepth = 32

// Builder validates candidates against their templates and promotes them to
// hashed graph entities. Errors returned by its methods are *result.Failure.
type Builder struct {
	registry *template.Registry
	logger   ectologger.Logger
	now      func() time.Time
	maxDepth int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the clock used for `_date_created`.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithMaxDepth bounds how deep nested partner candidates may go.
func WithMaxDepth(depth int) BuilderOption {
	return func(b *Builder) { b.maxDepth = depth }
}

// NewBuilder creates a builder. A nil registry validates everything against
// permissive templates.
func NewBuilder(registry *template.Registry, logger ectologger.Logger, opts ...BuilderOption) *Builder {
	if registry == nil {
		registry = template.NewRegistry(logger, nil)
	}
	b := &Builder{
		registry: registry,
		logger:   logger,
		now:      time.Now,
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Node promotes a node candidate. Implied relationships from the template
// are not materialized; use EnhancedNode for that.
func (b *Builder) Node(ctx context.Context, c *NodeCandidate) (*graph.Node, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Builder.Node")
	defer span.End()

	n, _, err := b.node(ctx, c)
	return n, err
}

// Nodes promotes each candidate, one result per input.
func (b *Builder) Nodes(ctx context.Context, cs []*NodeCandidate) []result.Result {
	out := make([]result.Result, len(cs))
	for i, c := range cs {
		n, err := b.Node(ctx, c)
		out[i] = toResult(n, err)
	}
	return out
}

// Relationship promotes a relationship candidate. main fills the main-node
// side when the candidate leaves it empty.
func (b *Builder) Relationship(ctx context.Context, c *RelationshipCandidate, main graph.Vertex) (*graph.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Builder.Relationship")
	defer span.End()

	return b.relationship(ctx, c, main, 0)
}

// Relationships promotes each candidate, one result per input.
func (b *Builder) Relationships(ctx context.Context, cs []*RelationshipCandidate) []result.Result {
	out := make([]result.Result, len(cs))
	for i, c := range cs {
		r, err := b.Relationship(ctx, c, nil)
		out[i] = toResult(r, err)
	}
	return out
}

// EnhancedNode promotes an enhanced node candidate, recursively promoting
// every partner. The result is only returned once the core is hashed and
// every relationship is writable.
func (b *Builder) EnhancedNode(ctx context.Context, c *EnhancedNodeCandidate) (*graph.EnhancedNode, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Builder.EnhancedNode")
	defer span.End()

	return b.enhanced(ctx, c, 0)
}

// EnhancedNodes promotes each candidate, one result per input.
func (b *Builder) EnhancedNodes(ctx context.Context, cs []*EnhancedNodeCandidate) []result.Result {
	out := make([]result.Result, len(cs))
	for i, c := range cs {
		e, err := b.EnhancedNode(ctx, c)
		out[i] = toResult(e, err)
	}
	return out
}

func toResult[T any](v T, err error) result.Result {
	if err != nil {
		if f, ok := err.(*result.Failure); ok {
			return result.Fail(f)
		}
		return result.Fail(&result.Failure{Kind: result.KindPromotion, Reason: err.Error(), Err: err})
	}
	return result.OK(v, nil, "", nil)
}

// node promotes c and returns the implied relationships of its template.
func (b *Builder) node(ctx context.Context, c *NodeCandidate) (*graph.Node, []template.ImpliedRelationship, error) {
	if c == nil {
		return nil, nil, result.Promotion("nil node candidate", nil)
	}
	if c.Label() == "" {
		return nil, nil, result.Promotion(ErrMissingLabel.Error(), c)
	}

	required, optional, err := normalizeKeys(c.Required, c.Optional)
	if err != nil {
		return nil, nil, result.Promotion(err.Error(), c)
	}

	tmpl := b.registry.Get(ctx, c.TemplateName())
	report := tmpl.Validate(required, optional)
	if !report.Valid {
		b.logger.WithContext(ctx).WithFields(map[string]any{
			"label":  c.Label(),
			"failed": len(report.Failed()),
		}).Debug("Node candidate failed validation")
		return nil, nil, result.Validation(fmt.Sprintf("node %s failed template %s", c.Label(), tmpl.Label), report)
	}

	props := graph.Properties{}
	for k, v := range optional {
		props[k] = v
	}
	for k, v := range required {
		props[k] = v
	}
	props[graph.KeyLabel] = c.Label()
	props[graph.KeyTemplate] = tmpl.Label
	props[graph.KeyDateCreated] = graph.DateArray(b.now())

	n := graph.NewNode(c.Labels, props)
	n.Properties[graph.KeyHash] = n.ComputeHash()

	return n, tmpl.BuildImpliedRelationships(n), nil
}

func (b *Builder) enhanced(ctx context.Context, c *EnhancedNodeCandidate, depth int) (*graph.EnhancedNode, error) {
	if c == nil {
		return nil, result.Promotion("nil enhanced node candidate", nil)
	}
	if depth > b.maxDepth {
		return nil, result.Promotion(fmt.Sprintf("candidate nesting exceeds depth %d", b.maxDepth), nil)
	}

	var e *graph.EnhancedNode
	rels := c.Relationships()
	switch v := c.Core.(type) {
	case *NodeCandidate:
		n, implied, err := b.node(ctx, v)
		if err != nil {
			return nil, err
		}
		e = graph.NewEnhancedNode(n, nil, nil)
		for _, imp := range implied {
			rc, err := impliedCandidate(imp)
			if err != nil {
				return nil, result.Promotion(err.Error(), c)
			}
			rels = append(rels, rc)
		}
	case existing:
		if v.vertex == nil || v.vertex.Core() == nil || v.vertex.Core().Hash() == "" {
			return nil, result.Promotion("existing core node is not hashed", c)
		}
		if en, ok := v.vertex.(*graph.EnhancedNode); ok {
			e = en
		} else {
			e = graph.NewEnhancedNode(v.vertex.Core(), nil, nil)
		}
	default:
		return nil, result.Promotion("enhanced node candidate has no core node", c)
	}

	for _, rc := range rels {
		rel, err := b.relationship(ctx, rc, e, depth+1)
		if err != nil {
			return nil, err
		}
		if rel.Direction == graph.Inbound {
			e.AddInbound(rel)
		} else {
			e.AddOutbound(rel)
		}
	}

	if !e.IsWritable() {
		return nil, result.Promotion("enhanced node is not writable after promotion", e)
	}
	return e, nil
}

func (b *Builder) relationship(ctx context.Context, c *RelationshipCandidate, main graph.Vertex, depth int) (*graph.Relationship, error) {
	if c == nil {
		return nil, result.Promotion("nil relationship candidate", nil)
	}
	if err := c.Validate(); err != nil {
		return nil, result.Promotion(err.Error(), c)
	}
	if depth > b.maxDepth {
		return nil, result.Promotion(fmt.Sprintf("candidate nesting exceeds depth %d", b.maxDepth), nil)
	}

	if m := c.Main(); main == nil && m != nil && m != Self {
		resolved, err := b.endpoint(ctx, m, nil, depth)
		if err != nil {
			return nil, err
		}
		main = resolved
	}
	if main == nil || main.Core() == nil {
		return nil, result.Promotion(fmt.Sprintf("relationship %s has no main node", c.Label), c)
	}

	partner, err := b.endpoint(ctx, c.Partner(), main, depth)
	if err != nil {
		return nil, err
	}

	required, optional, err := normalizeKeys(c.Required, c.Optional)
	if err != nil {
		return nil, result.Promotion(err.Error(), c)
	}
	tmpl := b.registry.Get(ctx, c.Label)
	report := tmpl.Validate(required, optional)
	if !report.Valid {
		return nil, result.Validation(fmt.Sprintf("relationship %s failed template %s", c.Label, tmpl.Label), report)
	}

	props := graph.Properties{}
	for k, v := range optional {
		props[k] = v
	}
	for k, v := range required {
		props[k] = v
	}

	start, end := partner, main
	if c.Direction == graph.Outbound {
		start, end = main, partner
	}
	rel := graph.NewRelationship(c.Label, props, start, end, c.Direction, c.Necessity)
	hash := rel.ComputeHash()
	if hash == "" {
		return nil, result.Promotion(fmt.Sprintf("relationship %s endpoints are not hashed", c.Label), c)
	}
	rel.Properties[graph.KeyHash] = hash
	return rel, nil
}

// endpoint promotes a partner. Node candidates whose template implies
// relationships become enhanced nodes so the implication is kept.
func (b *Builder) endpoint(ctx context.Context, ep Endpoint, main graph.Vertex, depth int) (graph.Vertex, error) {
	switch v := ep.(type) {
	case self:
		if main == nil {
			return nil, result.Promotion("self reference without a main node", nil)
		}
		return main, nil
	case existing:
		if v.vertex == nil || v.vertex.Core() == nil || v.vertex.Core().Hash() == "" {
			return nil, result.Promotion("existing endpoint is not hashed", nil)
		}
		return v.vertex, nil
	case *NodeCandidate:
		tmpl, ok := b.registry.Lookup(ctx, v.TemplateName())
		if ok && tmpl.Implied != nil {
			return b.enhanced(ctx, &EnhancedNodeCandidate{Core: v}, depth+1)
		}
		n, _, err := b.node(ctx, v)
		if err != nil {
			return nil, err
		}
		return n, nil
	case *EnhancedNodeCandidate:
		return b.enhanced(ctx, v, depth+1)
	case nil:
		return nil, result.Promotion("missing endpoint", nil)
	default:
		return nil, result.Promotion(fmt.Sprintf("unsupported endpoint %T", ep), nil)
	}
}

func impliedCandidate(imp template.ImpliedRelationship) (*RelationshipCandidate, error) {
	partner := FromProperties(imp.PartnerLabels, imp.PartnerProperties)
	var start, end Endpoint
	if imp.Direction == graph.Inbound {
		start = partner
	} else {
		end = partner
	}
	c, err := NewRelationshipCandidate(imp.Label, imp.Direction, start, end)
	if err != nil {
		return nil, err
	}
	p := graph.Properties(imp.Properties)
	c.WithProperties(p.Required(), p.Optional())
	if imp.Necessity != "" {
		c.WithNecessity(imp.Necessity)
	}
	return c, nil
}

// normalizeKeys upper-cases required keys and lower-cases optional keys that
// would otherwise read as required. Private keys are reserved.
func normalizeKeys(required, optional map[string]any) (map[string]any, map[string]any, error) {
	req := make(map[string]any, len(required))
	for k, v := range required {
		if graph.IsPrivate(k) {
			return nil, nil, fmt.Errorf("key %q is reserved", k)
		}
		up := strings.ToUpper(k)
		if !graph.IsRequired(up) {
			return nil, nil, fmt.Errorf("required key %q must contain a letter", k)
		}
		req[up] = v
	}
	opt := make(map[string]any, len(optional))
	for k, v := range optional {
		if graph.IsPrivate(k) {
			return nil, nil, fmt.Errorf("key %q is reserved", k)
		}
		if graph.IsRequired(k) {
			k = strings.ToLower(k)
		}
		if k == "" {
			return nil, nil, errors.New("empty optional key")
		}
		opt[k] = v
	}
	return req, opt, nil
}
