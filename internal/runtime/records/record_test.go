package records

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/drblury/scriptflow/internal/runtime/errors"
	"github.com/drblury/scriptflow/internal/runtime/metadata"
)

func TestReadJSONL(t *testing.T) {
	input := `{"event_id":4104,"created":"2024-03-01T10:00:00Z","fields":[1,2,"Write-Host 'a'","abc",""]}

{"event_id":4105,"created":"2024-03-01T10:00:01Z","fields":["abc","rs-1"],"source":"other"}
`
	recs, err := ReadJSONL(strings.NewReader(input), "host.jsonl")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 4104, recs[0].EventID)
	assert.Equal(t, "host.jsonl", recs[0].Source)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), recs[0].Created.UTC())
	require.Len(t, recs[0].Fields, 5)
	assert.Equal(t, float64(1), recs[0].Fields[0])
	assert.Equal(t, "Write-Host 'a'", recs[0].Fields[2])

	assert.Equal(t, "other", recs[1].Source, "explicit source is kept")
}

func TestReadJSONLReportsLine(t *testing.T) {
	input := "{\"event_id\":4104,\"fields\":[]}\n{not json\n"
	_, err := ReadJSONL(strings.NewReader(input), "bad.jsonl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := []Record{
		{EventID: 4103, Created: created, Fields: []any{"ctx", "", "", "id-1"}},
		{EventID: 4105, Created: created, Fields: []any{"id-1", "rs"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, in))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	out, err := ReadJSONL(&buf, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ctx", out[0].Fields[0])
	assert.True(t, out[1].Created.Equal(created))
}

func TestRecordField(t *testing.T) {
	rec := Record{Fields: []any{"a", nil}}
	v, ok := rec.Field(0)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = rec.Field(1)
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = rec.Field(2)
	assert.False(t, ok)
	_, ok = rec.Field(-1)
	assert.False(t, ok)
}

func TestMessageCodec(t *testing.T) {
	rec := Record{EventID: 4104, Fields: []any{float64(1), float64(1), "body", "id-1"}}
	msg, err := NewMessage(rec, "host-a")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.UUID)
	assert.Equal(t, "host-a", msg.Metadata.Get(metadata.KeyStream))

	decoded, err := FromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, rec.EventID, decoded.EventID)
	assert.Equal(t, rec.Fields, decoded.Fields)
}

func TestEndOfStreamMessage(t *testing.T) {
	msg := EndOfStreamMessage("host-a")
	md := metadata.FromWatermill(msg.Metadata)
	assert.True(t, md.EndOfStream())
	assert.Equal(t, "host-a", md.Stream())
	assert.Empty(t, msg.Payload)
}

func TestFromMessageRejectsGarbage(t *testing.T) {
	msg, err := NewMessage(Record{}, "s")
	require.NoError(t, err)
	msg.Payload = []byte("<xml/>")

	_, err = FromMessage(msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sferrors.ErrUnprocessableRecord))

	var typed *sferrors.UnprocessableRecordError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, msg.UUID, typed.MessageUUID)
}
