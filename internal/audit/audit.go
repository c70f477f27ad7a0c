package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind is the event kind recorded in a row.
type Kind string

const (
	KindComment Kind = "comment"
	KindMessage Kind = "message"
)

// timestampLayout matches JavaScript's Date.toISOString, which existing
// sheets were filled with.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Row is one audit record. Rows are appended and never updated.
type Row struct {
	EventID   string // Correlation id, kept out of the sheet
	Timestamp time.Time
	Actor     string
	Source    string // Comment id; empty when none
	Text      string
	Kind      Kind
	Bucket    string
	Reply     string // Only written for comment rows
}

// Values returns the sheet cells in column order. Message rows have no reply
// cell.
func (r Row) Values() []interface{} {
	values := []interface{}{
		r.Timestamp.UTC().Format(timestampLayout),
		r.Actor,
		r.Source,
		r.Text,
		string(r.Kind),
		r.Bucket,
	}
	if r.Kind == KindComment {
		values = append(values, r.Reply)
	}
	return values
}

// Appender persists audit rows.
type Appender interface {
	Append(ctx context.Context, row Row) error
	Name() string
}

// Fanout appends every row to each sink in order. A failing sink does not
// stop the others; all failures are joined.
type Fanout []Appender

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Append(ctx context.Context, row Row) error {
	var errs []error
	for _, a := range f {
		if err := a.Append(ctx, row); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops rows. Used when no audit sink is configured.
type Discard struct{}

func (Discard) Name() string { return "discard" }

func (Discard) Append(context.Context, Row) error { return nil }
