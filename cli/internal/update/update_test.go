package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewer(t *testing.T) {
	tests := []struct {
		current, latest string
		want            bool
	}{
		{"0.1.0", "0.2.0", true},
		{"v0.2.0", "0.2.0", false},
		{"1.0.0", "v0.9.9", false},
		{"1.0.0-beta", "1.0.0", true},
	}
	for _, tt := range tests {
		got, err := Newer(tt.current, tt.latest)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.current, tt.latest)
	}
	_, err := Newer("dev", "1.0.0")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v0.3.1","name":"0.3.1"}`))
	}))
	defer srv.Close()

	res, err := Check(context.Background(), srv.Client(), srv.URL, "0.1.0")
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, "0.3.1", res.Latest)
	assert.Contains(t, DownloadURL(res.Latest), "/v0.3.1/queryable-")
}
