// Package desired loads the declarative desired state of GA4 properties from
// a YAML document and presents it to the reconciliation engine.
//
// A document lists properties and, per property, the custom dimensions,
// custom metrics and conversion events that should exist. Listing a
// collection (even as an empty list) puts it under management; omitting it
// leaves the remote collection untouched.
package desired

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the root of a desired-state file.
type Document struct {
	Defaults   Defaults   `yaml:"defaults"`
	Properties []Property `yaml:"properties" validate:"dive"`
}

// Defaults fill in fields an entry leaves empty. They mirror the
// per-account settings sheet of the spreadsheet workflow this format
// replaces.
type Defaults struct {
	CustomDimensions DimensionDefaults `yaml:"customDimensions"`
	CustomMetrics    MetricDefaults    `yaml:"customMetrics"`
}

// DimensionDefaults apply to every custom dimension.
type DimensionDefaults struct {
	Scope       string `yaml:"scope" validate:"omitempty,oneof=EVENT USER ITEM"`
	Description string `yaml:"description" validate:"max=150"`
}

// MetricDefaults apply to every custom metric.
type MetricDefaults struct {
	MeasurementUnit      string   `yaml:"measurementUnit" validate:"omitempty,measurementunit"`
	RestrictedMetricType []string `yaml:"restrictedMetricType" validate:"dive,oneof=COST_DATA REVENUE_DATA"`
	Description          string   `yaml:"description" validate:"max=150"`
}

// Property is one GA4 property and the collections managed under it.
type Property struct {
	// ID accepts "123" or "properties/123".
	ID               string                `yaml:"id" validate:"required,propertyid"`
	DisplayName      string                `yaml:"displayName"`
	CustomDimensions List[Dimension]       `yaml:"customDimensions"`
	CustomMetrics    List[Metric]          `yaml:"customMetrics"`
	ConversionEvents List[ConversionEvent] `yaml:"conversionEvents"`

	line int
}

// UnmarshalYAML records the source line of the property.
func (p *Property) UnmarshalYAML(node *yaml.Node) error {
	type plain Property

	if err := node.Decode((*plain)(p)); err != nil {
		return err
	}

	p.line = node.Line

	return nil
}

// Name returns the canonical resource name "properties/<n>".
func (p *Property) Name() string {
	return NormalizePropertyID(p.ID)
}

// List is a collection that remembers whether it was declared at all. A
// declared empty list means "nothing should exist here"; an undeclared one
// means "not managed". A YAML null counts as undeclared.
type List[T any] struct {
	Items    []T `validate:"dive"`
	Declared bool
}

// UnmarshalYAML implements yaml.Unmarshaler. yaml.v3 does not call it for
// null nodes, which keeps null collections undeclared.
func (l *List[T]) UnmarshalYAML(node *yaml.Node) error {
	l.Declared = true
	return node.Decode(&l.Items)
}

// Dimension is a custom dimension entry. A bare string is shorthand for
// {parameterName: <string>}.
type Dimension struct {
	ParameterName              string `yaml:"parameterName" validate:"required,max=40"`
	DisplayName                string `yaml:"displayName" validate:"max=82"`
	Description                string `yaml:"description" validate:"max=150"`
	Scope                      string `yaml:"scope" validate:"required,oneof=EVENT USER ITEM"`
	DisallowAdsPersonalization *bool  `yaml:"disallowAdsPersonalization"`

	line int
}

// UnmarshalYAML accepts both the scalar shorthand and the mapping form.
func (d *Dimension) UnmarshalYAML(node *yaml.Node) error {
	d.line = node.Line

	if node.Kind == yaml.ScalarNode {
		d.ParameterName = node.Value
		return nil
	}

	type plain Dimension

	return node.Decode((*plain)(d))
}

// Metric is a custom metric entry. A bare string is shorthand for
// {parameterName: <string>}.
type Metric struct {
	ParameterName        string   `yaml:"parameterName" validate:"required,max=40"`
	DisplayName          string   `yaml:"displayName" validate:"max=82"`
	Description          string   `yaml:"description" validate:"max=150"`
	MeasurementUnit      string   `yaml:"measurementUnit" validate:"required,measurementunit"`
	Scope                string   `yaml:"scope" validate:"required,eq=EVENT"`
	RestrictedMetricType []string `yaml:"restrictedMetricType" validate:"dive,oneof=COST_DATA REVENUE_DATA"`

	line int
}

// UnmarshalYAML accepts both the scalar shorthand and the mapping form.
func (m *Metric) UnmarshalYAML(node *yaml.Node) error {
	m.line = node.Line

	if node.Kind == yaml.ScalarNode {
		m.ParameterName = node.Value
		return nil
	}

	type plain Metric

	return node.Decode((*plain)(m))
}

// ConversionEvent is a conversion event entry. A bare string is shorthand
// for {eventName: <string>}.
type ConversionEvent struct {
	EventName      string `yaml:"eventName" validate:"required,max=40"`
	CountingMethod string `yaml:"countingMethod" validate:"omitempty,oneof=ONCE_PER_EVENT ONCE_PER_SESSION"`

	line int
}

// UnmarshalYAML accepts both the scalar shorthand and the mapping form.
func (c *ConversionEvent) UnmarshalYAML(node *yaml.Node) error {
	c.line = node.Line

	if node.Kind == yaml.ScalarNode {
		c.EventName = node.Value
		return nil
	}

	type plain ConversionEvent

	return node.Decode((*plain)(c))
}

// Parse decodes a document, applies defaults and validates it. All
// validation problems are reported together.
func Parse(data []byte) (*Document, error) {
	var doc Document

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding desired state: %w", err)
	}

	doc.applyDefaults()

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Built-in defaults, used when the document's defaults section is silent.
const (
	defaultDimensionScope  = "EVENT"
	defaultMetricScope     = "EVENT"
	defaultMeasurementUnit = "STANDARD"
)

// applyDefaults normalizes enum casing and fills empty fields from the
// defaults section.
func (d *Document) applyDefaults() {
	dimDefaults := d.Defaults.CustomDimensions
	dimDefaults.Scope = strings.ToUpper(dimDefaults.Scope)

	if dimDefaults.Scope == "" {
		dimDefaults.Scope = defaultDimensionScope
	}

	metricDefaults := d.Defaults.CustomMetrics
	metricDefaults.MeasurementUnit = strings.ToUpper(metricDefaults.MeasurementUnit)

	if metricDefaults.MeasurementUnit == "" {
		metricDefaults.MeasurementUnit = defaultMeasurementUnit
	}

	d.Defaults.CustomDimensions = dimDefaults
	d.Defaults.CustomMetrics = metricDefaults

	for i := range d.Properties {
		p := &d.Properties[i]

		for j := range p.CustomDimensions.Items {
			dim := &p.CustomDimensions.Items[j]
			dim.Scope = firstNonEmpty(strings.ToUpper(dim.Scope), dimDefaults.Scope)
			dim.DisplayName = firstNonEmpty(dim.DisplayName, dim.ParameterName)
			dim.Description = firstNonEmpty(dim.Description, dimDefaults.Description)
		}

		for j := range p.CustomMetrics.Items {
			m := &p.CustomMetrics.Items[j]
			m.Scope = firstNonEmpty(strings.ToUpper(m.Scope), defaultMetricScope)
			m.MeasurementUnit = firstNonEmpty(strings.ToUpper(m.MeasurementUnit), metricDefaults.MeasurementUnit)
			m.DisplayName = firstNonEmpty(m.DisplayName, m.ParameterName)
			m.Description = firstNonEmpty(m.Description, metricDefaults.Description)

			if m.RestrictedMetricType == nil {
				m.RestrictedMetricType = metricDefaults.RestrictedMetricType
			}
		}

		for j := range p.ConversionEvents.Items {
			c := &p.ConversionEvents.Items[j]
			c.CountingMethod = strings.ToUpper(c.CountingMethod)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// NormalizePropertyID turns "123" into "properties/123" and leaves
// already-qualified names alone.
func NormalizePropertyID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, propertyPrefix) {
		return id
	}

	return propertyPrefix + id
}

const propertyPrefix = "properties/"
