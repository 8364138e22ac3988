package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordJSONFlattensCoordinates(t *testing.T) {
	t.Parallel()

	rec := Record{ID: "1", Title: "Fire", URL: "https://a", Coordinates: &Coordinates{Lat: 26.85, Lng: 80.95}}
	body, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))
	require.Equal(t, 26.85, fields["lat"])
	require.Equal(t, 80.95, fields["lng"])
	require.NotContains(t, fields, "coordinates")
	require.Equal(t, "Fire", fields["title"])

	var back Record
	require.NoError(t, json.Unmarshal(body, &back))
	require.Equal(t, rec, back)
}

func TestRecordJSONWithoutCoordinatesIsNull(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(Record{ID: "1", URL: "https://a"})
	require.NoError(t, err)
	require.Contains(t, string(body), `"lat":null`)
	require.Contains(t, string(body), `"lng":null`)

	var half Record
	require.NoError(t, json.Unmarshal([]byte(`{"id":"2","lat":1.5}`), &half))
	require.Nil(t, half.Coordinates)
	require.Equal(t, "2", half.ID)
}
