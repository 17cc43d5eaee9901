package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebDavStorage_WriteStreamSendsAuthenticatedPut(t *testing.T) {
	var gotMethod, gotPath, gotUser, gotPass, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		user, pass, _ := r.BasicAuth()
		gotUser, gotPass = user, pass
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := &WebDavStorage{
		endpoint: strings.TrimSuffix(srv.URL, "/"),
		username: "alice",
		password: "secret",
		name:     "webdav:" + srv.URL,
	}

	err := s.WriteStream(context.Background(), "file.txt", strings.NewReader("payload"), 7)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/file.txt", gotPath)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "payload", gotBody)
}

func TestWebDavStorage_WriteStreamPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("denied"))
	}))
	defer srv.Close()

	s := &WebDavStorage{endpoint: srv.URL, name: "webdav:" + srv.URL}
	err := s.WriteStream(context.Background(), "f.txt", strings.NewReader("x"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestIsWebDavNotFound(t *testing.T) {
	assert.True(t, isWebDavNotFound(os.ErrNotExist))
	assert.False(t, isWebDavNotFound(io.EOF))
}

func TestWebdavETag_NoETagInterface(t *testing.T) {
	info, err := os.Stat(".")
	require.NoError(t, err)
	assert.Equal(t, "", webdavETag(info))
}
