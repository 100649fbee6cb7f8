package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

func TestDoJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	var out struct{ Echo string }
	header := http.Header{"Authorization": []string{"Bearer secret"}}
	err := DoJSON(context.Background(), New(fastConfig(0)), http.MethodPost, srv.URL, header,
		map[string]string{"name": "remera"}, &out, "test")
	require.NoError(t, err)
	assert.Equal(t, "remera", out.Echo)
}

func TestDoJSON_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"currency_id invalid"}`))
	}))
	defer srv.Close()

	err := DoJSON(context.Background(), New(fastConfig(0)), http.MethodGet, srv.URL, nil, nil, nil, "test")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "currency_id invalid")
}

func TestDoJSON_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := DoJSON(context.Background(), New(fastConfig(0)), http.MethodGet, srv.URL, nil, nil, &out, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode test response")
}
