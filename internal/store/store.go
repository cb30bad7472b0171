// Package store keeps a local SQLite sandbox of GA4 property state. The
// sandbox implements the same reader and operation-table interfaces as the
// Admin API client, so a plan can be rehearsed offline against it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// Sentinel errors returned by sandbox mutations.
var (
	ErrUnknownProperty = errors.New("store: unknown property")
	ErrNotFound        = fmt.Errorf("store: %w", reconcile.ErrNotFound)
	ErrAlreadyExists   = errors.New("store: resource already exists")
	ErrProtected       = errors.New("store: resource is not deletable")
	ErrImmutable       = errors.New("store: field cannot be changed")
	ErrBadName         = errors.New("store: malformed resource name")
)

const (
	sqlListProperties = `SELECT name, display_name FROM properties ORDER BY name`

	sqlUpsertProperty = `INSERT INTO properties (name, display_name) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET display_name = excluded.display_name`

	sqlListResources = `SELECT id, local_key, fields, deletable FROM resources
		WHERE property = ? AND collection = ? AND archived = 0
		ORDER BY id`

	sqlGetResource = `SELECT property, collection, local_key, fields, deletable FROM resources
		WHERE id = ? AND archived = 0`

	sqlInsertResource = `INSERT INTO resources
		(property, collection, local_key, fields, deletable, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlUpdateFields = `UPDATE resources SET fields = ?, updated_at = ? WHERE id = ?`

	sqlArchiveResource = `UPDATE resources SET archived = 1, updated_at = ? WHERE id = ?`

	sqlDeleteResource = `DELETE FROM resources WHERE id = ?`

	sqlInsertMutation = `INSERT INTO mutations (at, action, resource) VALUES (?, ?, ?)`

	sqlListMutations = `SELECT seq, at, action, resource FROM mutations ORDER BY seq`
)

// Store is the sandbox database. All writes go through one connection.
type Store struct {
	db       *sql.DB
	registry *reconcile.Registry
	logger   *slog.Logger
	nowFunc  func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the sandbox at dbPath and migrates it.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: executor workers queue on this connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("sandbox opened", slog.String("db_path", dbPath))

	return &Store{
		db:       db,
		registry: reconcile.DefaultRegistry(),
		logger:   logger,
		nowFunc:  time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutProperty creates or renames a property.
func (s *Store) PutProperty(ctx context.Context, name, displayName string) error {
	if _, err := s.db.ExecContext(ctx, sqlUpsertProperty, name, displayName); err != nil {
		return fmt.Errorf("store: saving property %s: %w", name, err)
	}

	return nil
}

// Insert adds a resource directly, bypassing the operation tables. It is
// how seeding and tests place protected resources.
func (s *Store) Insert(
	ctx context.Context, property string, coll reconcile.Collection, fields map[string]any, deletable bool,
) (*reconcile.Entity, error) {
	var out *reconcile.Entity

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		e, err := s.insert(ctx, tx, property, coll, fields, deletable)
		out = e

		return err
	})

	return out, err
}

// ReadState implements reconcile.ObservedReader. Every property becomes a
// root; only scoped collections are loaded.
func (s *Store) ReadState(ctx context.Context, scopes []reconcile.Scope) (*reconcile.Snapshot, error) {
	snap := reconcile.NewSnapshot()

	rows, err := s.db.QueryContext(ctx, sqlListProperties)
	if err != nil {
		return nil, fmt.Errorf("store: listing properties: %w", err)
	}

	for rows.Next() {
		r := &reconcile.Root{}
		if err := rows.Scan(&r.ID, &r.DisplayName); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scanning property: %w", err)
		}

		snap.AddRoot(r)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating properties: %w", err)
	}

	for _, scope := range scopes {
		parent, coll, _, ok := reconcile.SplitID(string(scope) + "/x")
		if !ok {
			return nil, fmt.Errorf("store: malformed scope %q", scope)
		}

		root, found := snap.Roots[parent]
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, parent)
		}

		items, err := s.listCollection(ctx, parent, coll)
		if err != nil {
			return nil, err
		}

		root.SetCollection(coll, items)
	}

	s.logger.Debug("sandbox state read",
		slog.Int("properties", len(snap.Roots)),
		slog.Int("scopes", len(scopes)),
	)

	return snap, nil
}

func (s *Store) listCollection(ctx context.Context, parent string, coll reconcile.Collection) (map[string]*reconcile.Entity, error) {
	rows, err := s.db.QueryContext(ctx, sqlListResources, parent, string(coll))
	if err != nil {
		return nil, fmt.Errorf("store: listing %s of %s: %w", coll, parent, err)
	}
	defer rows.Close()

	out := make(map[string]*reconcile.Entity)

	for rows.Next() {
		var (
			id        int64
			key, raw  string
			deletable bool
		)

		if err := rows.Scan(&id, &key, &raw, &deletable); err != nil {
			return nil, fmt.Errorf("store: scanning resource: %w", err)
		}

		e, err := entityFromRow(parent, coll, id, key, raw, deletable)
		if err != nil {
			return nil, err
		}

		out[e.ID] = e
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating resources: %w", err)
	}

	return out, nil
}

// insert writes a resource row inside tx and journals the creation.
func (s *Store) insert(
	ctx context.Context, tx *sql.Tx, property string, coll reconcile.Collection, fields map[string]any, deletable bool,
) (*reconcile.Entity, error) {
	key, ok := fields[localKeyField(coll)].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("store: %s resource without %s", coll, localKeyField(coll))
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties WHERE name = ?`, property).Scan(&exists); err != nil {
		return nil, fmt.Errorf("store: checking property %s: %w", property, err)
	}

	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, property)
	}

	var taken int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resources WHERE property = ? AND collection = ? AND local_key = ? AND archived = 0`,
		property, string(coll), key,
	).Scan(&taken); err != nil {
		return nil, fmt.Errorf("store: checking %s: %w", key, err)
	}

	if taken > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, reconcile.ComposeID(property, coll, key))
	}

	stored := storedFields(fields)

	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("store: encoding fields of %s: %w", key, err)
	}

	now := s.nowFunc().UnixNano()

	res, err := tx.ExecContext(ctx, sqlInsertResource, property, string(coll), key, string(raw), deletable, now)
	if err != nil {
		return nil, fmt.Errorf("store: inserting %s: %w", key, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: reading id of %s: %w", key, err)
	}

	name := resourceName(property, coll, id)
	if err := s.journal(ctx, tx, "create", name); err != nil {
		return nil, err
	}

	return entityFromRow(property, coll, id, key, string(raw), deletable)
}

func (s *Store) journal(ctx context.Context, tx *sql.Tx, action, name string) error {
	if _, err := tx.ExecContext(ctx, sqlInsertMutation, s.nowFunc().UnixNano(), action, name); err != nil {
		return fmt.Errorf("store: journaling %s %s: %w", action, name, err)
	}

	return nil
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing: %w", err)
	}

	return nil
}

// Mutation is one journaled sandbox write.
type Mutation struct {
	Seq      int64
	At       time.Time
	Action   string
	Resource string
}

// Mutations returns the journal in write order.
func (s *Store) Mutations(ctx context.Context) ([]Mutation, error) {
	rows, err := s.db.QueryContext(ctx, sqlListMutations)
	if err != nil {
		return nil, fmt.Errorf("store: listing mutations: %w", err)
	}
	defer rows.Close()

	var out []Mutation

	for rows.Next() {
		var (
			m  Mutation
			at int64
		)

		if err := rows.Scan(&m.Seq, &at, &m.Action, &m.Resource); err != nil {
			return nil, fmt.Errorf("store: scanning mutation: %w", err)
		}

		m.At = time.Unix(0, at)
		out = append(out, m)
	}

	return out, rows.Err()
}

func entityFromRow(parent string, coll reconcile.Collection, id int64, key, raw string, deletable bool) (*reconcile.Entity, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("store: decoding fields of %s: %w", key, err)
	}

	fields["name"] = resourceName(parent, coll, id)

	return &reconcile.Entity{
		ID:          reconcile.ComposeID(parent, coll, key),
		ParentID:    parent,
		Fields:      fields,
		Indeletable: !deletable,
	}, nil
}

// storedFields copies fields without the resource name, which the row id
// determines.
func storedFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != "name" {
			out[k] = v
		}
	}

	return out
}

func resourceName(property string, coll reconcile.Collection, id int64) string {
	return property + "/" + string(coll) + "/" + strconv.FormatInt(id, 10)
}

// parseName returns the row id encoded in a resource name.
func parseName(name string) (int64, error) {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadName, name)
	}

	id, err := strconv.ParseInt(name[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadName, name)
	}

	return id, nil
}

func localKeyField(coll reconcile.Collection) string {
	if coll == reconcile.CollectionConversionEvents {
		return "eventName"
	}

	return "parameterName"
}
