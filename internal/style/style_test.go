package style

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/geoimport/internal/importer/transform"
)

func newStyleServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/styles/resolve", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("layer") {
		case "archsites":
			assert.Equal(t, "topp", q.Get("workspace"))
			assert.Equal(t, "Point", q.Get("geometry"))
			_ = json.NewEncoder(w).Encode(map[string]string{"style": "capitals"})
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "db down"})
		case "blank":
			_ = json.NewEncoder(w).Encode(map[string]string{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newStyleServer(t)
	c := NewClient(&ClientConfig{BaseURL: srv.URL, APIKey: "secret", Timeout: 2 * time.Second})
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	style, err := c.Resolve(ctx, "topp", "archsites", "Point")
	require.NoError(t, err)
	assert.Equal(t, "capitals", style)

	_, err = c.Resolve(ctx, "topp", "unknown", "Point")
	assert.ErrorIs(t, err, transform.ErrNoStyle)

	_, err = c.Resolve(ctx, "topp", "blank", "Point")
	assert.ErrorIs(t, err, transform.ErrNoStyle)

	_, err = c.Resolve(ctx, "topp", "broken", "Point")
	require.Error(t, err)
	assert.NotErrorIs(t, err, transform.ErrNoStyle)
	assert.Contains(t, err.Error(), "db down")
}

func TestClientPingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(&ClientConfig{BaseURL: srv.URL}).Ping(context.Background())
	assert.ErrorContains(t, err, "503")
}

type styleSet map[string]bool

func (s styleSet) HasStyle(_ context.Context, workspace, name string) (bool, error) {
	return s[workspace+":"+name], nil
}

func TestCatalogResolver(t *testing.T) {
	r := NewCatalogResolver(styleSet{
		"topp:topp_states": true,
		"topp:polygon":     true,
		"topp:point":       true,
	})
	ctx := context.Background()

	tests := []struct {
		layer    string
		geometry string
		want     string
		noStyle  bool
	}{
		{"states", "MultiPolygon", "topp_states", false},
		{"roads", "MultiPolygon", "polygon", false},
		{"sites", "Point", "point", false},
		{"roads", "LineString", "", true},
		{"table", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.layer+"/"+tt.geometry, func(t *testing.T) {
			got, err := r.Resolve(ctx, "topp", tt.layer, tt.geometry)
			if tt.noStyle {
				assert.ErrorIs(t, err, transform.ErrNoStyle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubResolver struct {
	style string
	err   error
}

func (s stubResolver) Ping(context.Context) error { return s.err }

func (s stubResolver) Resolve(context.Context, string, string, string) (string, error) {
	return s.style, s.err
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	secondary := stubResolver{style: "point"}

	f := &Fallback{Primary: stubResolver{style: "remote"}, Secondary: secondary}
	got, err := f.Resolve(ctx, "topp", "sites", "Point")
	require.NoError(t, err)
	assert.Equal(t, "remote", got)

	f.Primary = stubResolver{err: errors.New("timeout")}
	got, err = f.Resolve(ctx, "topp", "sites", "Point")
	require.NoError(t, err)
	assert.Equal(t, "point", got)
	assert.NoError(t, f.Ping(ctx))

	f.Primary = stubResolver{err: transform.ErrNoStyle}
	got, err = f.Resolve(ctx, "topp", "sites", "Point")
	require.NoError(t, err)
	assert.Equal(t, "point", got)

	f = &Fallback{Secondary: secondary}
	got, err = f.Resolve(ctx, "topp", "sites", "Point")
	require.NoError(t, err)
	assert.Equal(t, "point", got)
}

func TestNewResolver(t *testing.T) {
	ctx := context.Background()
	styles := styleSet{"topp:point": true}

	local := NewResolver(nil, styles)
	assert.IsType(t, &CatalogResolver{}, local)

	srv := newStyleServer(t)
	remote := NewResolver(&ClientConfig{BaseURL: srv.URL, APIKey: "secret"}, styles)
	require.IsType(t, &Fallback{}, remote)

	got, err := remote.Resolve(ctx, "topp", "archsites", "Point")
	require.NoError(t, err)
	assert.Equal(t, "capitals", got)

	got, err = remote.Resolve(ctx, "topp", "broken", "MultiPoint")
	require.NoError(t, err)
	assert.Equal(t, "point", got)
}
