package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

func newServer(t *testing.T, handler http.HandlerFunc) *NominatimClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewNominatimClient(NominatimConfig{BaseURL: server.URL + "/", UserAgent: "communes-test", Timeout: time.Second})
}

func TestNominatimClient_Found(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "L'Abergement-Clemenciat 01400", r.URL.Query().Get("q"))
		assert.Equal(t, "communes-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"46.1534","lon":"4.9260","display_name":"L'Abergement-Clémenciat, Ain"}]`))
	})

	lat, lon, found, err := client.Lookup(context.Background(), "L'Abergement-Clemenciat 01400")
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, 46.1534, lat, 1e-9)
	assert.InDelta(t, 4.9260, lon, 1e-9)
}

func TestNominatimClient_NotFound(t *testing.T) {
	cases := map[string]string{
		"empty result":          `[]`,
		"unparsable coordinate": `[{"lat":"north","lon":"4.9"}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			_, _, found, err := client.Lookup(context.Background(), "Nowhere 99999")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestNominatimClient_TransientStatuses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, _, found, err := client.Lookup(context.Background(), "Bourg-en-Bresse 01000")
		require.Error(t, err, "status %d", status)
		assert.False(t, found)

		var tne *TransientNetworkError
		require.ErrorAs(t, err, &tne)
		assert.Equal(t, status, tne.StatusCode)
		assert.True(t, exception.IsErrorOfType(err, "TransientNetworkError"))
		assert.True(t, exception.IsTransient(err))
	}
}

func TestNominatimClient_UnreachableIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewNominatimClient(NominatimConfig{BaseURL: url, Timeout: time.Second})
	_, _, _, err := client.Lookup(context.Background(), "Oyonnax 01100")
	require.Error(t, err)
	assert.True(t, exception.IsErrorOfType(err, "TransientNetworkError"))
}

func TestNominatimClient_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client := NewNominatimClient(NominatimConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, _, _, err := client.Lookup(context.Background(), "Belley 01300")
	require.Error(t, err)
	var tne *TransientNetworkError
	require.ErrorAs(t, err, &tne)
	assert.Zero(t, tne.StatusCode)
}

func TestNominatimClient_PermanentFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"bad request": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid query", http.StatusBadRequest)
		},
		"malformed json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"lat":`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			client := newServer(t, handler)
			_, _, _, err := client.Lookup(context.Background(), "Gex 01170")
			require.Error(t, err)
			assert.True(t, exception.IsBatchError(err))
			assert.False(t, exception.IsTransient(err))
		})
	}
}

func TestNominatimClient_CancelledContext(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := client.Lookup(ctx, "Nantua 01130")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, exception.IsErrorOfType(err, "TransientNetworkError"))
}
