package serve

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chrisrueger/equinox/common/cryptoprov"
	"github.com/chrisrueger/equinox/common/location"
	"github.com/chrisrueger/equinox/common/secret"
	"github.com/chrisrueger/equinox/common/store"
	"github.com/chrisrueger/equinox/common/util"
	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeLoc = location.FromPath("/srv/" + location.DefaultFileName)

func newServer(t *testing.T) (*httptest.Server, *location.Storage, *prometheus.Registry) {
	storage := location.NewStorage(memoryfs.New())
	reg := prometheus.NewRegistry()

	srv := httptest.NewServer(NewRouter(Config{
		Storage:  storage,
		Location: storeLoc,
		Gatherer: reg,
	}))
	t.Cleanup(srv.Close)
	return srv, storage, reg
}

func get(t *testing.T, url string) (int, []byte) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestGetStore(t *testing.T) {
	srv, storage, _ := newServer(t)

	status, _ := get(t, srv.URL+StorePath)
	assert.Equal(t, http.StatusNotFound, status)

	require.NoError(t, storage.Write(storeLoc, []byte("store bytes")))
	status, body := get(t, srv.URL+StorePath)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []byte("store bytes"), body)

	resp, err := http.Post(srv.URL+StorePath, "application/octet-stream", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestVersion(t *testing.T) {
	srv, _, _ := newServer(t)

	status, body := get(t, srv.URL+"/version")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, util.VersionString()+"\n", string(body))
}

func TestOpenRemoteStore(t *testing.T) {
	ctx := context.Background()
	srv, storage, reg := newServer(t)
	crypto := cryptoprov.NewRegistryWithScryptMode(secret.ScryptInteractive)
	password := []byte("correct")

	local, err := store.Open(ctx, storeLoc, store.WithStorage(storage), store.WithCryptoRegistry(crypto))
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "/acct", "user", []byte("alice"), store.PutOptions{}))
	require.NoError(t, local.Put(ctx, "/acct", "pwd", []byte("s3cret"), store.PutOptions{
		Encrypt:  true,
		Password: password,
	}))
	require.NoError(t, local.Close(ctx, true))

	remoteLoc, err := location.Parse(srv.URL + StorePath)
	require.NoError(t, err)
	remoteStorage := location.NewStorage(nil, location.WithHTTPClient(srv.Client()))

	metrics := store.NewMetrics(reg)
	remote, err := store.Open(ctx, remoteLoc,
		store.WithStorage(remoteStorage),
		store.WithCryptoRegistry(crypto),
		store.WithMetrics(metrics))
	require.NoError(t, err)
	assert.True(t, remote.ReadOnly())

	user, err := remote.Get(ctx, "/acct", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), user)

	pwd, err := remote.Get(ctx, "/acct", "pwd", password)
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), pwd)

	require.NoError(t, remote.Put(ctx, "/acct", "user", []byte("bob"), store.PutOptions{}))
	err = remote.Flush(ctx)
	var ioErr *store.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, location.ErrReadOnly)

	status, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "equinox_secure_storage_loads_total 1")
	assert.Contains(t, string(body), "equinox_secure_storage_flush_failures_total 1")
}
