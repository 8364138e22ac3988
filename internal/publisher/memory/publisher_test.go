package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsJSON(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "ingest", map[string]int{"count": 2})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"count":2}`, string(msgs[0].Data))

	msgs[0].Topic = "changed"
	require.Equal(t, "ingest", pub.Messages()[0].Topic)
}

func TestPublisherRejectsUnencodable(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "ingest", make(chan int))
	require.Error(t, err)
	require.Empty(t, New().Messages())
}
