package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/apidispatch/internal/util"
)

func TestGetParamsMergesSources(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/pets/42?limit=10&tag=dog&tag=cat", nil)
	req.Header.Set("X-Tenant", "acme")

	rc := NewRequestContext(nil, req, &Resolved{PathParams: map[string]string{"petId": "42"}})

	params, err := rc.GetParams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", params.Path["petId"])
	assert.Equal(t, "10", params.Query.Get("limit"))
	assert.Equal(t, []string{"dog", "cat"}, params.Query["tag"])
	assert.Equal(t, "acme", params.Header.Get("X-Tenant"))

	// Parsing is cached.
	again, err := rc.GetParams(context.Background())
	require.NoError(t, err)
	assert.Same(t, params, again)
}

func TestGetParamsMalformedQuery(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/pets", nil)
	req.URL.RawQuery = "a=%zz"

	rc := NewRequestContext(nil, req, nil)
	_, err := rc.GetParams(context.Background())

	var ve *util.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, http.StatusBadRequest, ve.StatusCode())
}

func TestGetBodyJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/pets", strings.NewReader(`{"name":"rex"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	rc := NewRequestContext(nil, req, nil)
	body, err := rc.GetBody(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "rex"}, body)

	// Second call returns the cached value without re-reading.
	again, err := rc.GetBody(context.Background())
	require.NoError(t, err)
	assert.Equal(t, body, again)
}

func TestGetBodyJSONSuffixMediaType(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/pets", strings.NewReader(`{"op":"add"}`))
	req.Header.Set("Content-Type", "application/json-patch+json")

	rc := NewRequestContext(nil, req, nil)
	body, err := rc.GetBody(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"op": "add"}, body)
}

func TestGetBodyInvalidJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/pets", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")

	rc := NewRequestContext(nil, req, nil)
	_, err := rc.GetBody(context.Background())

	var ve *util.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Issues, 1)
	assert.Equal(t, "body", ve.Issues[0].Location)
}

func TestGetBodyRawBytesForNonJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("raw payload"))
	req.Header.Set("Content-Type", "application/octet-stream")

	rc := NewRequestContext(nil, req, nil)
	body, err := rc.GetBody(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("raw payload"), body)
}

func TestGetBodyEmpty(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/pets", nil)
	rc := NewRequestContext(nil, req, nil)

	body, err := rc.GetBody(context.Background())
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestResponseFinishedTracking(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/pets", nil)
	rc := NewRequestContext(httptest.NewRecorder(), req, nil)

	assert.False(t, rc.ResponseFinished())
	assert.False(t, rc.HeadersSent())

	rc.Finish()
	assert.True(t, rc.ResponseFinished())
	assert.False(t, rc.HeadersSent(), "explicit finish does not imply transport writes")
}

func TestResponseFinishedAfterTransportWrite(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/pets", nil)
	rc := NewRequestContext(httptest.NewRecorder(), req, nil)

	_, err := rc.Writer().Write([]byte("direct"))
	require.NoError(t, err)

	assert.True(t, rc.HeadersSent())
	assert.True(t, rc.ResponseFinished())
}

func TestResponseStateDefaults(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/pets", nil)
	rc := NewRequestContext(nil, req, nil)

	assert.Equal(t, http.StatusOK, rc.Response().StatusCode())
	_, set := rc.Response().Body()
	assert.False(t, set)
	assert.Nil(t, rc.Writer())
	assert.False(t, rc.ResponseFinished())
}
