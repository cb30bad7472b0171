package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// ErrMissingResourceName is returned when a dispose or modify targets an
// entity that carries no remote resource name.
var ErrMissingResourceName = errors.New("admin: entity has no resource name")

// mutableFields lists, per collection, the fields PATCH may change. Other
// differences are handled as replacements by the executor.
var mutableFields = map[reconcile.Collection][]string{
	reconcile.CollectionCustomDimensions: {"description", "disallowAdsPersonalization", "displayName"},
	reconcile.CollectionCustomMetrics:    {"description", "displayName"},
}

// Table implements reconcile.Resolver.
func (c *Client) Table(k reconcile.Kind) (reconcile.OperationTable, error) {
	switch k {
	case reconcile.KindCustomDimension:
		return c.archivableTable(reconcile.CollectionCustomDimensions), nil
	case reconcile.KindCustomMetric:
		return c.archivableTable(reconcile.CollectionCustomMetrics), nil
	case reconcile.KindConversionEvent:
		// Conversion events cannot be patched; a change replaces them.
		return reconcile.OperationTable{
			Create:  c.createFunc(reconcile.CollectionConversionEvents),
			Dispose: c.deleteEntity,
		}, nil
	default:
		return reconcile.OperationTable{}, fmt.Errorf("%w %s", reconcile.ErrNoOperationTable, k)
	}
}

// archivableTable covers custom dimensions and metrics, which are archived
// rather than deleted.
func (c *Client) archivableTable(coll reconcile.Collection) reconcile.OperationTable {
	return reconcile.OperationTable{
		Create:  c.createFunc(coll),
		Dispose: c.archiveEntity,
		Modify:  c.patchFunc(coll),
	}
}

func (c *Client) createFunc(coll reconcile.Collection) reconcile.MutationFunc {
	return func(ctx context.Context, e *reconcile.Entity) (*reconcile.Entity, error) {
		body := requestBody(e.Fields)
		delete(body, "name")

		var created map[string]any
		if err := c.doJSON(ctx, http.MethodPost, "/"+e.ParentID+"/"+string(coll), body, &created); err != nil {
			return nil, err
		}

		return withFields(e, created), nil
	}
}

func (c *Client) patchFunc(coll reconcile.Collection) reconcile.MutationFunc {
	return func(ctx context.Context, e *reconcile.Entity) (*reconcile.Entity, error) {
		name, err := resourceName(e)
		if err != nil {
			return nil, err
		}

		body := make(map[string]any)

		for _, f := range mutableFields[coll] {
			if v, ok := e.Fields[f]; ok {
				body[f] = v
			}
		}

		mask := make([]string, 0, len(body))
		for f := range body {
			mask = append(mask, f)
		}

		sort.Strings(mask)

		path := "/" + name + "?" + url.Values{"updateMask": []string{strings.Join(mask, ",")}}.Encode()

		var updated map[string]any
		if err := c.doJSON(ctx, http.MethodPatch, path, body, &updated); err != nil {
			return nil, err
		}

		return withFields(e, updated), nil
	}
}

func (c *Client) archiveEntity(ctx context.Context, e *reconcile.Entity) (*reconcile.Entity, error) {
	name, err := resourceName(e)
	if err != nil {
		return nil, err
	}

	if err := c.doJSON(ctx, http.MethodPost, "/"+name+":archive", map[string]any{}, nil); err != nil {
		return nil, err
	}

	return e, nil
}

func (c *Client) deleteEntity(ctx context.Context, e *reconcile.Entity) (*reconcile.Entity, error) {
	name, err := resourceName(e)
	if err != nil {
		return nil, err
	}

	if err := c.doJSON(ctx, http.MethodDelete, "/"+name, nil, nil); err != nil {
		return nil, err
	}

	return e, nil
}

func resourceName(e *reconcile.Entity) (string, error) {
	name, _ := e.Fields["name"].(string)
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingResourceName, e.ID)
	}

	return name, nil
}

// requestBody copies fields, leaving out output-only ones.
func requestBody(fields map[string]any) map[string]any {
	body := make(map[string]any, len(fields))
	for k, v := range fields {
		body[k] = v
	}

	for _, f := range outputOnlyFields {
		delete(body, f)
	}

	return body
}

// withFields returns a copy of e carrying the fields the API answered with.
func withFields(e *reconcile.Entity, fields map[string]any) *reconcile.Entity {
	out := *e
	if fields != nil {
		out.Fields = fields
	}

	return &out
}
