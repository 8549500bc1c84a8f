package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/readonlyfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLocation = FromPath("/home/user/" + DefaultFileName)

func TestReadMissingFile(t *testing.T) {
	s := NewStorage(memoryfs.New())

	_, err := s.Read(context.Background(), testLocation)
	assert.ErrorIs(t, err, ErrNotExist)

	ok, err := s.Exists(testLocation)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteAndRead(t *testing.T) {
	fs := memoryfs.New()
	s := NewStorage(fs)

	require.NoError(t, s.Write(testLocation, []byte("first")))
	require.NoError(t, s.Write(testLocation, []byte("second")))

	data, err := s.Read(context.Background(), testLocation)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)

	ok, err := s.Exists(testLocation)
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := vfs.ReadDir(fs, "/home/user")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestDelete(t *testing.T) {
	s := NewStorage(memoryfs.New())

	require.NoError(t, s.Write(testLocation, []byte("data")))
	require.NoError(t, s.Delete(testLocation))
	assert.ErrorIs(t, s.Delete(testLocation), ErrNotExist)
}

func TestWriteReadOnlyFileSystem(t *testing.T) {
	fs := memoryfs.New()
	require.NoError(t, NewStorage(fs).Write(testLocation, []byte("before")))

	s := NewStorage(readonlyfs.New(fs))
	err := s.Write(testLocation, []byte("after"))
	require.Error(t, err)
	assert.True(t, vfs.IsErrReadOnly(err))

	data, err := s.Read(context.Background(), testLocation)
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), data)
}

// flakyFS fails the first renames with a lock conflict.
type flakyFS struct {
	vfs.FileSystem
	mu       sync.Mutex
	failures int
}

func (f *flakyFS) Rename(oldname, newname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return vfs.NewPathError("rename", newname, syscall.EBUSY)
	}
	return f.FileSystem.Rename(oldname, newname)
}

func TestWriteRetriesOnce(t *testing.T) {
	fs := &flakyFS{FileSystem: memoryfs.New(), failures: 1}
	s := NewStorage(fs)

	require.NoError(t, s.Write(testLocation, []byte("data")))

	data, err := s.Read(context.Background(), testLocation)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestWriteGivesUpAfterRetry(t *testing.T) {
	base := memoryfs.New()
	require.NoError(t, NewStorage(base).Write(testLocation, []byte("before")))

	fs := &flakyFS{FileSystem: base, failures: 2}
	s := NewStorage(fs)

	err := s.Write(testLocation, []byte("after"))
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EBUSY)

	data, err := s.Read(context.Background(), testLocation)
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), data)

	entries, err := vfs.ReadDir(base, "/home/user")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be removed after a failed write")
}

func TestRemoteLocation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/store", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote data"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewStorage(memoryfs.New(), WithHTTPClient(srv.Client()))
	ctx := context.Background()

	loc, err := Parse(srv.URL + "/store")
	require.NoError(t, err)

	data, err := s.Read(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote data"), data)

	ok, err := s.Exists(loc)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Write(loc, []byte("x")), ErrReadOnly)
	assert.ErrorIs(t, s.Delete(loc), ErrReadOnly)

	missing, err := Parse(srv.URL + "/missing")
	require.NoError(t, err)
	_, err = s.Read(ctx, missing)
	assert.ErrorIs(t, err, ErrNotExist)

	broken, err := Parse(srv.URL + "/broken")
	require.NoError(t, err)
	_, err = s.Read(ctx, broken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExist)
}

func TestLockSerialisesWriters(t *testing.T) {
	unlock := Lock(testLocation)

	acquired := make(chan struct{})
	go func() {
		release := Lock(testLocation)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired twice")
	case <-time.After(50 * time.Millisecond):
	}

	other := Lock(FromPath("/elsewhere"))
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not handed over")
	}
}
