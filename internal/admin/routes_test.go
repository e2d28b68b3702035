package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/twotier"
	pr "github.com/unkn0wn-root/twotier/provider"
	"github.com/unkn0wn-root/twotier/provider/memstore"
)

type brokenBackend struct{ pr.Backend }

type brokenStore struct{ pr.Store }

func (b brokenBackend) Open(name string) (pr.Store, error) {
	s, err := b.Backend.Open(name)
	return brokenStore{s}, err
}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("shared tier down")
}

func newTestServer(t *testing.T, shared pr.Backend) (*gin.Engine, *twotier.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg, err := twotier.New(twotier.Options{
		Shared:    shared,
		MachineID: "128",
		Policy:    twotier.Policy{MinLocalSize: 10},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return New(reg, nil).Routes(), reg
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t, memstore.NewBackend(memstore.Config{}))

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "128", body["machine_id"])
}

func TestEntryLifecycle(t *testing.T) {
	r, _ := newTestServer(t, memstore.NewBackend(memstore.Config{}))

	w := do(r, http.MethodPut, "/caches/users/entries/1", "value length greater than 10")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/caches/users/entries/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "VALID", body["status"])
	require.Equal(t, "value length greater than 10", body["value"])

	w = do(r, http.MethodPut, "/caches/users/entries/2", "small")
	require.Equal(t, http.StatusNoContent, w.Code)
	body = decode(t, do(r, http.MethodGet, "/caches/users/entries/2", ""))
	require.Equal(t, "USE_REMOTE", body["status"])
	require.Equal(t, "small", body["value"])

	w = do(r, http.MethodDelete, "/caches/users/entries/1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/caches/users/entries/1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "INVALID", decode(t, w)["status"])

	w = do(r, http.MethodDelete, "/caches/users", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/caches/users/entries/2", "").Code)

	w = do(r, http.MethodGet, "/caches", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []any{"users"}, decode(t, w)["caches"])
}

func TestUnknownCacheIs404(t *testing.T) {
	r, _ := newTestServer(t, memstore.NewBackend(memstore.Config{Fixed: []string{"users"}}))

	w := do(r, http.MethodGet, "/caches/carts/entries/1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, decode(t, w)["error"], "cannot find cache named 'carts'")
}

func TestStoreErrorIs500(t *testing.T) {
	r, _ := newTestServer(t, brokenBackend{memstore.NewBackend(memstore.Config{})})
	// below the size gate, so the write skips the broken shared read
	require.Equal(t, http.StatusNoContent, do(r, http.MethodPut, "/caches/users/entries/1", "x").Code)

	w := do(r, http.MethodGet, "/caches/users/entries/1", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, decode(t, w)["error"], "shared tier down")
}

func TestReadsDoNotCreateCaches(t *testing.T) {
	r, reg := newTestServer(t, memstore.NewBackend(memstore.Config{}))

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/caches/ghost/entries/1"},
		{http.MethodDelete, "/caches/ghost/entries/1"},
		{http.MethodDelete, "/caches/ghost"},
	} {
		w := do(r, req.method, req.path, "")
		require.Equal(t, http.StatusNotFound, w.Code, "%s %s", req.method, req.path)
		require.Contains(t, decode(t, w)["error"], "cannot find cache named 'ghost'")
	}
	names, err := reg.Names(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)

	require.Equal(t, http.StatusNoContent, do(r, http.MethodPut, "/caches/ghost/entries/1", "v").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/caches/ghost/entries/1", "").Code)
}
