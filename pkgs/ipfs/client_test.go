package ipfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_NormalizesAddress(t *testing.T) {
	tests := map[string]string{
		"":                         "http://127.0.0.1:5001",
		"localhost:5001":           "http://localhost:5001",
		"https://ipfs.example:443": "https://ipfs.example:443",
		"/ip4/172.29.0.2/tcp/5001": "http://172.29.0.2:5001",
		"/dns/kubo/tcp/5001":       "http://kubo:5001",
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			c, err := NewClient(input, time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, c.apiURL)
		})
	}
}

func TestIsAvailable_FailingNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)
	assert.False(t, c.IsAvailable(context.Background()))
}

func TestCat_RejectsBadPath(t *testing.T) {
	c, err := NewClient("127.0.0.1:1", time.Second)
	require.NoError(t, err)

	_, err = c.Cat(context.Background(), "not a cid")
	assert.Error(t, err)
}
