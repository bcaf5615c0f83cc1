package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "raw"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck

	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		gotPath string
		gotName string
		gotBody string
		gotCond string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		gotName = r.URL.Query().Get("name")
		gotBody = string(body)
		gotCond = r.URL.Query().Get("ifGenerationMatch")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":%q,"bucket":"raw-bucket"}`, r.URL.Query().Get("name"))
	}))
	defer server.Close()

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	store, err := New(client, Config{Bucket: "raw-bucket"})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	uri, err := store.PutObject(context.Background(), "run/cdx/abc.json", "application/json", strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "gs://raw-bucket/run/cdx/abc.json", uri)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, gotPath, "/b/raw-bucket/o")
	assert.Equal(t, "run/cdx/abc.json", gotName)
	assert.Contains(t, gotBody, `[]`)
	assert.Equal(t, "0", gotCond)
}

func TestPutObjectExistingObjectIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		fmt.Fprint(w, `{"error":{"code":412,"message":"conditionNotMet"}}`)
	}))
	defer server.Close()

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	store, err := New(client, Config{Bucket: "raw-bucket"})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	uri, err := store.PutObject(context.Background(), "run/cdx/abc.json", "application/json", strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "gs://raw-bucket/run/cdx/abc.json", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"forbidden"}}`)
	}))
	defer server.Close()

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	store, err := New(client, Config{Bucket: "raw-bucket"})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	_, err = store.PutObject(context.Background(), "run/cdx/abc.json", "application/json", strings.NewReader(`[]`))
	require.ErrorContains(t, err, "finalize gs://raw-bucket/run/cdx/abc.json")
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)

	store, err := New(client, Config{Bucket: "raw-bucket"})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}
