package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// ErrUnknownProperty is returned when a scope names a property that none of
// the accessible accounts contains.
var ErrUnknownProperty = errors.New("admin: property not accessible")

const (
	pageSize = 200
	// readConcurrency bounds parallel list calls during ReadState.
	readConcurrency = 4
)

// outputOnlyFields are set by the API and never sent back. They are
// dropped from observed entities so they cannot show up as drift.
var outputOnlyFields = []string{"createTime", "custom", "deletable"}

// Account and Property mirror the list responses. Only the fields the
// reader uses are decoded.
type Account struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type Property struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type listPage struct {
	Accounts         []Account        `json:"accounts"`
	Properties       []Property       `json:"properties"`
	CustomDimensions []map[string]any `json:"customDimensions"`
	CustomMetrics    []map[string]any `json:"customMetrics"`
	ConversionEvents []map[string]any `json:"conversionEvents"`
	NextPageToken    string           `json:"nextPageToken"`
}

// listAll walks every page of a list endpoint, calling collect per page.
func (c *Client) listAll(ctx context.Context, path string, query url.Values, collect func(*listPage)) error {
	if query == nil {
		query = url.Values{}
	}

	query.Set("pageSize", fmt.Sprint(pageSize))

	for {
		var page listPage
		if err := c.doJSON(ctx, http.MethodGet, path+"?"+query.Encode(), nil, &page); err != nil {
			return err
		}

		collect(&page)

		if page.NextPageToken == "" {
			return nil
		}

		query.Set("pageToken", page.NextPageToken)
	}
}

// ListAccounts returns every account the credentials can see.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account

	err := c.listAll(ctx, "/accounts", nil, func(p *listPage) {
		out = append(out, p.Accounts...)
	})
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	return out, nil
}

// ListProperties returns the properties of accountName ("accounts/123").
func (c *Client) ListProperties(ctx context.Context, accountName string) ([]Property, error) {
	var out []Property

	query := url.Values{"filter": []string{"parent:" + accountName}}

	err := c.listAll(ctx, "/properties", query, func(p *listPage) {
		out = append(out, p.Properties...)
	})
	if err != nil {
		return nil, fmt.Errorf("listing properties of %s: %w", accountName, err)
	}

	return out, nil
}

// listCollection returns the raw items of one collection of a property.
func (c *Client) listCollection(ctx context.Context, propertyName string, coll reconcile.Collection) ([]map[string]any, error) {
	var out []map[string]any

	err := c.listAll(ctx, "/"+propertyName+"/"+string(coll), nil, func(p *listPage) {
		switch coll {
		case reconcile.CollectionCustomDimensions:
			out = append(out, p.CustomDimensions...)
		case reconcile.CollectionCustomMetrics:
			out = append(out, p.CustomMetrics...)
		case reconcile.CollectionConversionEvents:
			out = append(out, p.ConversionEvents...)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s of %s: %w", coll, propertyName, err)
	}

	return out, nil
}

// ReadState implements reconcile.ObservedReader. It lists accounts and
// their properties, then loads only the scoped collections. Collections
// outside scopes stay nil (not loaded).
func (c *Client) ReadState(ctx context.Context, scopes []reconcile.Scope) (*reconcile.Snapshot, error) {
	roots, err := c.readRoots(ctx)
	if err != nil {
		return nil, err
	}

	type target struct {
		root *reconcile.Root
		coll reconcile.Collection
	}

	var targets []target

	for _, scope := range scopes {
		parent, coll, ok := splitScope(scope)
		if !ok {
			return nil, fmt.Errorf("admin: malformed scope %q", scope)
		}

		root, found := roots[parent]
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, parent)
		}

		targets = append(targets, target{root: root, coll: coll})
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)

	for _, t := range targets {
		g.Go(func() error {
			items, err := c.listCollection(gctx, t.root.ID, t.coll)
			if err != nil {
				return err
			}

			entities := toEntities(t.root.ID, t.coll, items)

			mu.Lock()
			t.root.SetCollection(t.coll, entities)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := reconcile.NewSnapshot()
	for _, r := range roots {
		snap.AddRoot(r)
	}

	c.logger.Info("admin: state read",
		slog.Int("properties", len(roots)),
		slog.Int("collections", len(targets)),
	)

	return snap, nil
}

// readRoots lists all properties of all accounts, one account per
// goroutine.
func (c *Client) readRoots(ctx context.Context) (map[string]*reconcile.Root, error) {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex

	roots := make(map[string]*reconcile.Root)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)

	for _, acc := range accounts {
		g.Go(func() error {
			props, err := c.ListProperties(gctx, acc.Name)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			for _, p := range props {
				roots[p.Name] = &reconcile.Root{ID: p.Name, DisplayName: p.DisplayName}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("admin: properties listed",
		slog.Int("accounts", len(accounts)),
		slog.Int("properties", len(roots)),
	)

	return roots, nil
}

// toEntities converts raw API items into entities keyed by id.
func toEntities(parent string, coll reconcile.Collection, items []map[string]any) map[string]*reconcile.Entity {
	out := make(map[string]*reconcile.Entity, len(items))

	for _, item := range items {
		key, _ := item[localKeyField(coll)].(string)
		if key == "" {
			continue
		}

		e := &reconcile.Entity{
			ID:       reconcile.ComposeID(parent, coll, key),
			ParentID: parent,
			Fields:   make(map[string]any, len(item)),
		}

		if coll == reconcile.CollectionConversionEvents {
			e.Indeletable = !boolField(item, "deletable") || !boolField(item, "custom")
		}

		for k, v := range item {
			e.Fields[k] = v
		}

		for _, f := range outputOnlyFields {
			delete(e.Fields, f)
		}

		out[e.ID] = e
	}

	return out
}

func localKeyField(coll reconcile.Collection) string {
	if coll == reconcile.CollectionConversionEvents {
		return "eventName"
	}

	return "parameterName"
}

func boolField(item map[string]any, key string) bool {
	b, _ := item[key].(bool)
	return b
}

func splitScope(scope reconcile.Scope) (string, reconcile.Collection, bool) {
	// A scope has the shape of an id without the local key.
	parent, coll, _, ok := reconcile.SplitID(string(scope) + "/x")
	return parent, coll, ok
}
