package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// Table implements reconcile.Resolver. The sandbox enforces the same rules
// as the Admin API: dimensions and metrics are archived, conversion events
// are deleted and cannot be patched, and immutable fields reject changes.
func (s *Store) Table(k reconcile.Kind) (reconcile.OperationTable, error) {
	spec, ok := s.registry.Spec(k)
	if !ok {
		return reconcile.OperationTable{}, fmt.Errorf("%w %s", reconcile.ErrNoOperationTable, k)
	}

	if k == reconcile.KindConversionEvent {
		return reconcile.OperationTable{
			Create:  s.createFunc(spec.Collection),
			Dispose: s.disposeFunc("delete"),
		}, nil
	}

	return reconcile.OperationTable{
		Create:  s.createFunc(spec.Collection),
		Dispose: s.disposeFunc("archive"),
		Modify:  s.modifyFunc(spec),
	}, nil
}

func (s *Store) createFunc(coll reconcile.Collection) reconcile.MutationFunc {
	return func(ctx context.Context, e *reconcile.Entity) (*reconcile.Entity, error) {
		var out *reconcile.Entity

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			created, err := s.insert(ctx, tx, e.ParentID, coll, e.Fields, true)
			out = created

			return err
		})
		if err != nil {
			return nil, err
		}

		s.logger.Debug("sandbox create", slog.String("id", out.ID), slog.Any("name", out.Fields["name"]))

		return out, nil
	}
}

func (s *Store) disposeFunc(action string) reconcile.MutationFunc {
	return func(ctx context.Context, e *reconcile.Entity) (*reconcile.Entity, error) {
		name, _ := e.Fields["name"].(string)

		id, err := parseName(name)
		if err != nil {
			return nil, err
		}

		err = s.inTx(ctx, func(tx *sql.Tx) error {
			row, err := s.loadRow(ctx, tx, id, name)
			if err != nil {
				return err
			}

			if !row.deletable {
				return fmt.Errorf("%w: %s", ErrProtected, name)
			}

			if action == "delete" {
				_, err = tx.ExecContext(ctx, sqlDeleteResource, id)
			} else {
				_, err = tx.ExecContext(ctx, sqlArchiveResource, s.nowFunc().UnixNano(), id)
			}

			if err != nil {
				return fmt.Errorf("store: %s %s: %w", action, name, err)
			}

			return s.journal(ctx, tx, action, name)
		})
		if err != nil {
			return nil, err
		}

		return e, nil
	}
}

func (s *Store) modifyFunc(spec reconcile.KindSpec) reconcile.MutationFunc {
	return func(ctx context.Context, e *reconcile.Entity) (*reconcile.Entity, error) {
		name, _ := e.Fields["name"].(string)

		id, err := parseName(name)
		if err != nil {
			return nil, err
		}

		var out *reconcile.Entity

		err = s.inTx(ctx, func(tx *sql.Tx) error {
			row, err := s.loadRow(ctx, tx, id, name)
			if err != nil {
				return err
			}

			for _, field := range spec.Immutable {
				if !sameValue(row.fields[field], e.Fields[field]) {
					return fmt.Errorf("%w: %s of %s", ErrImmutable, field, name)
				}
			}

			merged := row.fields
			for k, v := range storedFields(e.Fields) {
				merged[k] = v
			}

			raw, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("store: encoding fields of %s: %w", name, err)
			}

			if _, err := tx.ExecContext(ctx, sqlUpdateFields, string(raw), s.nowFunc().UnixNano(), id); err != nil {
				return fmt.Errorf("store: updating %s: %w", name, err)
			}

			if err := s.journal(ctx, tx, "patch", name); err != nil {
				return err
			}

			out, err = entityFromRow(row.property, row.collection, id, row.key, string(raw), row.deletable)

			return err
		})
		if err != nil {
			return nil, err
		}

		return out, nil
	}
}

type resourceRow struct {
	property   string
	collection reconcile.Collection
	key        string
	fields     map[string]any
	deletable  bool
}

func (s *Store) loadRow(ctx context.Context, tx *sql.Tx, id int64, name string) (*resourceRow, error) {
	var (
		row  resourceRow
		coll string
		raw  string
	)

	err := tx.QueryRowContext(ctx, sqlGetResource, id).Scan(&row.property, &coll, &row.key, &raw, &row.deletable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err != nil {
		return nil, fmt.Errorf("store: loading %s: %w", name, err)
	}

	row.collection = reconcile.Collection(coll)
	row.fields = make(map[string]any)

	if err := json.Unmarshal([]byte(raw), &row.fields); err != nil {
		return nil, fmt.Errorf("store: decoding fields of %s: %w", name, err)
	}

	return &row, nil
}

// sameValue compares two field values by their JSON encoding, so 1 and
// 1.0 read from different sources are equal.
func sameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)

	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
