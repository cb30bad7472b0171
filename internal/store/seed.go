package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// SeedStats counts what Seed wrote.
type SeedStats struct {
	Properties int
	Resources  int
	Skipped    int
}

// Seed registers every root of snap as a property and, unless
// propertiesOnly is set, inserts its declared entities. Entities whose key
// is already taken are skipped, so seeding twice is harmless.
func (s *Store) Seed(ctx context.Context, snap *reconcile.Snapshot, propertiesOnly bool) (SeedStats, error) {
	var stats SeedStats

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range snap.RootIDs() {
			root := snap.Roots[id]

			if _, err := tx.ExecContext(ctx, sqlUpsertProperty, root.ID, root.DisplayName); err != nil {
				return fmt.Errorf("store: saving property %s: %w", root.ID, err)
			}

			stats.Properties++

			if propertiesOnly {
				continue
			}

			for _, coll := range s.registry.Collections() {
				items, ok := root.Collection(coll)
				if !ok {
					continue
				}

				for _, e := range items {
					if _, err := s.insert(ctx, tx, root.ID, coll, e.Fields, !e.Indeletable); err != nil {
						if isAlreadyExists(err) {
							stats.Skipped++
							continue
						}

						return err
					}

					stats.Resources++
				}
			}
		}

		return nil
	})
	if err != nil {
		return SeedStats{}, err
	}

	s.logger.Info("sandbox seeded",
		slog.Int("properties", stats.Properties),
		slog.Int("resources", stats.Resources),
		slog.Int("skipped", stats.Skipped),
	)

	return stats, nil
}

// Show writes the active sandbox contents as a table.
func (s *Store) Show(ctx context.Context, w io.Writer) error {
	snap, err := s.ReadState(ctx, nil)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROTECTED\tFIELDS")

	for _, rootID := range snap.RootIDs() {
		root := snap.Roots[rootID]
		fmt.Fprintf(tw, "%s\t%s\t\t\n", root.ID, root.DisplayName)

		for _, coll := range s.registry.Collections() {
			items, err := s.listCollection(ctx, root.ID, coll)
			if err != nil {
				return err
			}

			for _, id := range sortedKeys(items) {
				e := items[id]

				name, _ := e.Fields["name"].(string)

				raw, err := json.Marshal(storedFields(e.Fields))
				if err != nil {
					return fmt.Errorf("store: encoding %s: %w", id, err)
				}

				protected := ""
				if e.Indeletable {
					protected = "yes"
				}

				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", id, name, protected, raw)
			}
		}
	}

	return tw.Flush()
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func sortedKeys(m map[string]*reconcile.Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
