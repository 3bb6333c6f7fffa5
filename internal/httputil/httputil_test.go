package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONError(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		body   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad hex") }, 400, `{"error":"bad hex"}`},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "no sensor") }, 404, `{"error":"no sensor"}`},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, 500, `{"error":"boom"}`},
		{"ok", func(w http.ResponseWriter) { WriteJSONOK(w, map[string]int{"bits": 8}) }, 200, `{"bits":8}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Hex string `json:"hex"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"hex":"ab"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, 1024, &v))
	assert.Equal(t, "ab", v.Hex)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"hexx":"ab"}`))
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), r, 1024, &v))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"hex":"`+strings.Repeat("a", 100)+`"}`))
	var tooBig *http.MaxBytesError
	assert.ErrorAs(t, DecodeJSON(httptest.NewRecorder(), r, 16, &v), &tooBig)
}

func TestMockHTTPClient(t *testing.T) {
	m := NewMockHTTPClient(
		MockResponse{StatusCode: http.StatusCreated, Body: `{"id":"x"}`},
		MockResponse{Error: errors.New("refused")},
	)

	req, err := http.NewRequest(http.MethodPost, "http://teds.local/api/sensors", strings.NewReader("payload"))
	require.NoError(t, err)
	resp, err := m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, err = m.Do(req)
	assert.ErrorContains(t, err, "refused")

	resp, err = m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 3, m.RequestCount())
	got, body := m.Request(0)
	assert.Equal(t, "/api/sensors", got.URL.Path)
	assert.Equal(t, "payload", string(body))
	got, _ = m.Request(5)
	assert.Nil(t, got)
}

func TestStandardClient(t *testing.T) {
	assert.Equal(t, http.DefaultClient, StandardClient(nil))
	c := &http.Client{}
	assert.Equal(t, c, StandardClient(c))
}
