package template

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"
)

// Source loads definitions that were not registered in-process, e.g. the
// Redis store. A nil definition with a nil error means "not found".
type Source interface {
	Load(ctx context.Context, label string) (*Definition, error)
}

// Registry resolves templates by label. Lookups are cached; labels nobody
// declared resolve to a permissive template.
type Registry struct {
	templates sync.Map // label -> *Template
	source    Source
	compiler  *Compiler
	logger    ectologger.Logger
}

// NewRegistry creates a registry. source may be nil.
func NewRegistry(logger ectologger.Logger, source Source) *Registry {
	return &Registry{
		source:   source,
		compiler: NewCompiler(),
		logger:   logger,
	}
}

// Register adds or replaces templates.
func (r *Registry) Register(templates ...*Template) {
	for _, t := range templates {
		r.templates.Store(t.Label, t)
	}
}

// RegisterDefinitions compiles and registers definitions.
func (r *Registry) RegisterDefinitions(defs ...Definition) error {
	for _, d := range defs {
		t, err := r.compiler.Compile(d)
		if err != nil {
			return err
		}
		r.Register(t)
	}
	return nil
}

// Lookup returns the template registered for label, consulting the source
// on a cache miss. ok is false when no template is declared anywhere.
func (r *Registry) Lookup(ctx context.Context, label string) (*Template, bool) {
	if cached, ok := r.templates.Load(label); ok {
		return cached.(*Template), true
	}
	if r.source == nil {
		return nil, false
	}

	log := r.logger.WithContext(ctx).WithField("label", label)
	def, err := r.source.Load(ctx, label)
	if err != nil {
		log.WithError(err).Warn("Failed to load template, falling back to permissive")
		return nil, false
	}
	if def == nil {
		return nil, false
	}
	t, err := r.compiler.Compile(*def)
	if err != nil {
		log.WithError(err).Warn("Stored template does not compile, falling back to permissive")
		return nil, false
	}
	actual, _ := r.templates.LoadOrStore(label, t)
	log.Debug("Loaded template from source")
	return actual.(*Template), true
}

// Get returns the template for label or a permissive one.
func (r *Registry) Get(ctx context.Context, label string) *Template {
	if t, ok := r.Lookup(ctx, label); ok {
		return t
	}
	return Permissive(label)
}

// Invalidate drops a cached template so the next lookup hits the source.
func (r *Registry) Invalidate(label string) {
	r.templates.Delete(label)
}
