package desired

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// Reader is a reconcile.DesiredReader backed by a YAML file. Each
// ParseState call rereads the file, so watch mode picks up edits.
type Reader struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	scopes []reconcile.Scope
}

// NewReader creates a reader for the document at path.
func NewReader(path string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reader{path: path, logger: logger}
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return doc, nil
}

// ParseState implements reconcile.DesiredReader.
func (r *Reader) ParseState(ctx context.Context) (*reconcile.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := Load(r.path)
	if err != nil {
		return nil, err
	}

	snap := doc.Snapshot(r.path)
	scopes := reconcile.ScopesOf(snap)

	r.mu.Lock()
	r.scopes = scopes
	r.mu.Unlock()

	r.logger.Debug("desired: document parsed",
		slog.String("path", r.path),
		slog.Int("properties", len(doc.Properties)),
		slog.Int("scopes", len(scopes)),
	)

	return snap, nil
}

// MutationScopes implements reconcile.DesiredReader.
func (r *Reader) MutationScopes() []reconcile.Scope {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.scopes
}

// Snapshot converts the document to the engine's tree form. source is used
// to build UI references of the form "<source>:<line>".
func (d *Document) Snapshot(source string) *reconcile.Snapshot {
	snap := reconcile.NewSnapshot()

	for i := range d.Properties {
		p := &d.Properties[i]
		parent := p.Name()

		root := &reconcile.Root{
			ID:          parent,
			DisplayName: p.DisplayName,
			UIRef:       uiRef(source, p.line),
		}

		if p.CustomDimensions.Declared {
			root.SetCollection(reconcile.CollectionCustomDimensions,
				collect(parent, reconcile.CollectionCustomDimensions, source, p.CustomDimensions.Items, dimensionEntity))
		}

		if p.CustomMetrics.Declared {
			root.SetCollection(reconcile.CollectionCustomMetrics,
				collect(parent, reconcile.CollectionCustomMetrics, source, p.CustomMetrics.Items, metricEntity))
		}

		if p.ConversionEvents.Declared {
			root.SetCollection(reconcile.CollectionConversionEvents,
				collect(parent, reconcile.CollectionConversionEvents, source, p.ConversionEvents.Items, conversionEventEntity))
		}

		snap.AddRoot(root)
	}

	return snap
}

// collect builds the entity map of one collection. toFields returns the
// local key, the entity fields and the source line of an item.
func collect[T any](
	parent string,
	c reconcile.Collection,
	source string,
	items []T,
	toFields func(T) (string, map[string]any, int),
) map[string]*reconcile.Entity {
	out := make(map[string]*reconcile.Entity, len(items))

	for _, item := range items {
		key, fields, line := toFields(item)
		id := reconcile.ComposeID(parent, c, key)

		out[id] = &reconcile.Entity{
			ID:       id,
			ParentID: parent,
			Fields:   fields,
			UIRef:    uiRef(source, line),
		}
	}

	return out
}

// Empty optional values are left out of the field set. The Admin API omits
// them from responses, so including them would show up as permanent drift.
func dimensionEntity(d Dimension) (string, map[string]any, int) {
	fields := map[string]any{
		"parameterName": d.ParameterName,
		"displayName":   d.DisplayName,
		"scope":         d.Scope,
	}

	putString(fields, "description", d.Description)

	if d.DisallowAdsPersonalization != nil {
		fields["disallowAdsPersonalization"] = *d.DisallowAdsPersonalization
	}

	return d.ParameterName, fields, d.line
}

func metricEntity(m Metric) (string, map[string]any, int) {
	fields := map[string]any{
		"parameterName":   m.ParameterName,
		"displayName":     m.DisplayName,
		"scope":           m.Scope,
		"measurementUnit": m.MeasurementUnit,
	}

	putString(fields, "description", m.Description)

	if len(m.RestrictedMetricType) > 0 {
		types := make([]any, len(m.RestrictedMetricType))
		for i, t := range m.RestrictedMetricType {
			types[i] = t
		}

		fields["restrictedMetricType"] = types
	}

	return m.ParameterName, fields, m.line
}

func conversionEventEntity(c ConversionEvent) (string, map[string]any, int) {
	fields := map[string]any{
		"eventName": c.EventName,
	}

	putString(fields, "countingMethod", c.CountingMethod)

	return c.EventName, fields, c.line
}

func putString(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

func uiRef(source string, line int) string {
	if source == "" || line == 0 {
		return ""
	}

	return fmt.Sprintf("%s:%d", source, line)
}
