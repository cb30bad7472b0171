package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
// Method form of statusf so callers need not thread the flag through.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

type changeJSON struct {
	Path     string `json:"path"`
	Previous any    `json:"previous,omitempty"`
	Value    any    `json:"value"`
}

type operationJSON struct {
	ID      string       `json:"id"`
	Mode    string       `json:"mode"`
	Kind    string       `json:"kind"`
	Source  string       `json:"source,omitempty"`
	Changes []changeJSON `json:"changes,omitempty"`
}

type planOutput struct {
	RunID      string          `json:"run_id"`
	Scopes     []string        `json:"scopes"`
	Operations []operationJSON `json:"operations"`
}

type resultOutput struct {
	planOutput
	Success int     `json:"success"`
	Failure int     `json:"failure"`
	NoOps   int     `json:"noops"`
	Elapsed float64 `json:"elapsed_seconds"`
}

// planJSON converts a plan to its JSON output shape, operations in id
// order.
func planJSON(planned *reconcile.PlanResult) planOutput {
	out := planOutput{
		RunID:      planned.RunID,
		Scopes:     make([]string, 0, len(planned.Scopes)),
		Operations: make([]operationJSON, 0, len(planned.Plan)),
	}

	for _, s := range planned.Scopes {
		out.Scopes = append(out.Scopes, string(s))
	}

	for _, id := range planned.Plan.IDs() {
		op := planned.Plan[id]

		entry := operationJSON{ID: id, Mode: string(op.Mode), Kind: op.Kind.String(), Source: op.UIRef}
		for _, ch := range op.Diff {
			entry.Changes = append(entry.Changes, changeJSON{Path: ch.PathString(), Previous: ch.Previous, Value: ch.Value})
		}

		out.Operations = append(out.Operations, entry)
	}

	return out
}

func resultJSON(planned *reconcile.PlanResult, res reconcile.Result) resultOutput {
	return resultOutput{
		planOutput: planJSON(planned),
		Success:    res.Success,
		Failure:    res.Failure,
		NoOps:      res.NoOps,
		Elapsed:    res.Elapsed.Seconds(),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
