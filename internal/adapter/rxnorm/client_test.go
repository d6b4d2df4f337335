package rxnorm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const drugsJSON = `{
	"drugGroup": {
		"conceptGroup": [
			{"tty": "BN", "conceptProperties": [{"rxcui": "153165", "name": "Advil"}]},
			{"tty": "SCD", "conceptProperties": [{"rxcui": "310965", "name": "ibuprofen 200 MG Oral Tablet"}]}
		]
	}
}`

const propertiesJSON = `{
	"propConceptGroup": {
		"propConcept": [
			{"propName": "RxNorm Preferred Name", "propValue": "ibuprofen 200 MG Oral Tablet"},
			{"propName": "RxNorm Generic Name", "propValue": "ibuprofen"}
		]
	}
}`

func newTestServer(t *testing.T, propsFail bool) (*httptest.Server, *int) {
	calls := new(int)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		switch {
		case r.URL.Path == "/drugs.json":
			w.Write([]byte(drugsJSON))
		case strings.HasSuffix(r.URL.Path, "/properties.json"):
			if propsFail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(propertiesJSON))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	return ts, calls
}

func newTestClient(ts *httptest.Server) *Client {
	return NewClient(Config{BaseURL: ts.URL, Timeout: 2 * time.Second, CacheTTL: time.Minute}, nil)
}

func TestNormalizePrefersClinicalDrugConcept(t *testing.T) {
	ts, _ := newTestServer(t, false)
	defer ts.Close()

	c := newTestClient(ts)
	norm, err := c.Normalize(context.Background(), "advil")
	require.NoError(t, err)
	// SCD outranks BN even when BN appears first in the response.
	assert.Equal(t, "310965", norm.RxCUI)
	assert.Equal(t, "ibuprofen 200 MG Oral Tablet", norm.PreferredName)
	assert.Equal(t, "ibuprofen", norm.GenericName)
	assert.Equal(t, "advil", norm.InputName)
	assert.Contains(t, norm.Citation(), "310965")
}

func TestNormalizePropertyFailureIsNotFatal(t *testing.T) {
	ts, _ := newTestServer(t, true)
	defer ts.Close()

	c := newTestClient(ts)
	norm, err := c.Normalize(context.Background(), "advil")
	require.NoError(t, err)
	assert.Equal(t, "310965", norm.RxCUI)
	// Falls back to the concept name from the drugs search.
	assert.Equal(t, "ibuprofen 200 MG Oral Tablet", norm.PreferredName)
	assert.Empty(t, norm.GenericName)
}

func TestNormalizeMemoizes(t *testing.T) {
	ts, calls := newTestServer(t, false)
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.Normalize(context.Background(), "Advil")
	require.NoError(t, err)
	before := *calls

	_, err = c.Normalize(context.Background(), "advil")
	require.NoError(t, err)
	assert.Equal(t, before, *calls)
}

func TestNormalizeNoMatchIsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"drugGroup": {}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.Normalize(context.Background(), "notarealdrug")
	assert.Equal(t, ErrNotFound, err)
}

func TestPickConceptFallsBackToAnyGroup(t *testing.T) {
	var drugs drugsResponse
	raw := `{"drugGroup": {"conceptGroup": [{"tty": "DF", "conceptProperties": [{"rxcui": "42", "name": "odd concept"}]}]}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &drugs))

	rxcui, name := pickConcept(&drugs)
	assert.Equal(t, "42", rxcui)
	assert.Equal(t, "odd concept", name)
}
