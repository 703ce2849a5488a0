package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.4.0", "1.4.0", 0},
		{"1.4", "1.4.0", 0},
		{"1.4.0", "1.10.0", -1},
		{"v2.0.0", "1.9.9", 1},
		{"1.4.0", "1.4.1", -1},
		{"garbage", "0.0.1", -1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompareVersions(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version.json":
			w.Write([]byte(`{"version":"1.5.0","download_url":"https://example.test/dl","changelog":["x"]}`))
		case "/bad.json":
			w.Write([]byte(`{`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	res, err := Check(ctx, srv.Client(), srv.URL+"/version.json", "1.4.0")
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, "1.5.0", res.Remote)
	assert.Equal(t, "https://example.test/dl", res.Manifest.DownloadURL)

	res, err = Check(ctx, srv.Client(), srv.URL+"/version.json", "1.5.0")
	require.NoError(t, err)
	assert.False(t, res.Available)

	_, err = Check(ctx, srv.Client(), srv.URL+"/missing.json", "1.4.0")
	assert.ErrorContains(t, err, "404")

	_, err = Check(ctx, srv.Client(), srv.URL+"/bad.json", "1.4.0")
	assert.ErrorContains(t, err, "decode")

	_, err = Check(ctx, nil, "", "1.4.0")
	assert.Error(t, err)
}
