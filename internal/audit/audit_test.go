package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

func TestRowValuesComment(t *testing.T) {
	row := Row{
		Timestamp: fixedTime,
		Actor:     "ana",
		Source:    "c1",
		Text:      "me interesa el viaje",
		Kind:      KindComment,
		Bucket:    "travel",
		Reply:     "Hola ana",
	}
	assert.Equal(t, []interface{}{
		"2026-03-04T05:06:07.890Z", "ana", "c1", "me interesa el viaje", "comment", "travel", "Hola ana",
	}, row.Values())
}

func TestRowValuesMessageOmitsReply(t *testing.T) {
	row := Row{Timestamp: fixedTime, Actor: "psid", Text: "hola", Kind: KindMessage, Bucket: "unknown", Reply: "ignored"}
	values := row.Values()
	require.Len(t, values, 6)
	assert.Equal(t, "", values[2])
	assert.Equal(t, "message", values[4])
}

func TestRowValuesConvertsToUTC(t *testing.T) {
	madrid := time.FixedZone("CET", 3600)
	row := Row{Timestamp: time.Date(2026, 1, 1, 1, 0, 0, 0, madrid), Kind: KindMessage}
	assert.Equal(t, "2026-01-01T00:00:00.000Z", row.Values()[0])
}

type recordingAppender struct {
	name string
	err  error
	rows []Row
}

func (r *recordingAppender) Name() string { return r.name }

func (r *recordingAppender) Append(_ context.Context, row Row) error {
	r.rows = append(r.rows, row)
	return r.err
}

func TestFanoutTriesEverySink(t *testing.T) {
	first := &recordingAppender{name: "first", err: errors.New("quota exceeded")}
	second := &recordingAppender{name: "second"}

	err := Fanout{first, second}.Append(context.Background(), Row{Kind: KindComment})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "first: quota exceeded")
	assert.Len(t, first.rows, 1)
	assert.Len(t, second.rows, 1)
}

func TestFanoutNoErrors(t *testing.T) {
	a := &recordingAppender{name: "a"}
	require.NoError(t, Fanout{a, Discard{}}.Append(context.Background(), Row{}))
	require.NoError(t, Fanout{}.Append(context.Background(), Row{}))
}
