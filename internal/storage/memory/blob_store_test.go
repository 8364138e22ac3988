package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	uri, err := s.PutObject(context.Background(), "raw/youtube/1.json", "application/json", bytes.NewReader([]byte("[]")))
	require.NoError(t, err)
	require.Equal(t, "memory://raw/youtube/1.json", uri)

	got, ok := s.Object("raw/youtube/1.json")
	require.True(t, ok)
	require.Equal(t, "[]", string(got))
	got[0] = 'X'
	again, _ := s.Object("raw/youtube/1.json")
	require.Equal(t, "[]", string(again))
	require.Equal(t, 1, s.Len())

	_, ok = s.Object("missing")
	require.False(t, ok)
}
