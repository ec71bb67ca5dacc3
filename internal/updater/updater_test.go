package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2.1.0", "2.1.0", 0},
		{"v2.1.0", "2.1.0", 0},
		{"2.1.1", "2.1.0", 1},
		{"2.0.9", "2.1.0", -1},
		{"2.1", "2.1.0", 0},
		{"3.0.0", "2.10.4", 1},
		{"2.1.0-beta", "2.1.0", -1},
		{"2.1.0", "2.1.0-rc1", 1},
		{"2.1.0-rc2", "2.1.0-rc1", 1},
	}
	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%q, %q): expected %d, got %d", tt.a, tt.b, tt.want, got)
		}
	}
}

func manifestServer(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestCheckNewer(t *testing.T) {
	url := manifestServer(t, http.StatusOK, `{"version":"2.2.0","url":"https://mega.nz/cmd","notes":["faster"]}`)
	r, err := Check(context.Background(), url, "2.1.0")
	require.NoError(t, err)
	assert.True(t, r.Newer)
	assert.Equal(t, []string{"faster"}, r.Latest.Notes)
	assert.Contains(t, r.Message(), "A new version of MEGAcmd is available: 2.2.0")
	assert.Contains(t, r.Message(), "https://mega.nz/cmd")
}

func TestCheckUpToDate(t *testing.T) {
	url := manifestServer(t, http.StatusOK, `{"version":"2.1.0"}`)
	r, err := Check(context.Background(), url, "2.1.0")
	require.NoError(t, err)
	assert.False(t, r.Newer)
	assert.Equal(t, "MEGAcmd 2.1.0 is up to date", r.Message())
}

func TestCheckErrors(t *testing.T) {
	url := manifestServer(t, http.StatusNotFound, `not found`)
	_, err := Check(context.Background(), url, "2.1.0")
	assert.Error(t, err)

	url = manifestServer(t, http.StatusOK, `{}`)
	_, err = Check(context.Background(), url, "2.1.0")
	assert.Error(t, err)
}

func TestCheckSendsAcceptAndHonoursContext(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Write([]byte(`{"version":"2.1.0"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := Check(context.Background(), srv.URL, "2.1.0")
	require.NoError(t, err)
	assert.Equal(t, "application/json", accept)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Check(ctx, srv.URL, "2.1.0")
	assert.Error(t, err)
}
