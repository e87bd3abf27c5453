package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

func TestListMarkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_real_files", r.URL.Path)
		json.NewEncoder(w).Encode([]pipeline.Marker{
			{Filename: "37.1000,127.0000.jpg", Latitude: "37.1000", Longitude: "127.0000"},
		})
	}))
	defer srv.Close()

	markers, err := New(srv.URL).ListMarkers(context.Background())
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "127.0000", markers[0].Longitude)
}

func TestFetchImageAndThumbnail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/real_images/37.1000,127.0000.jpg", r.URL.Path)
		if r.URL.Query().Get("width") != "" {
			assert.Equal(t, "32", r.URL.Query().Get("width"))
			assert.Equal(t, "24", r.URL.Query().Get("height"))
			w.Write([]byte("thumb"))
			return
		}
		w.Write([]byte("full"))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, srv.Client())

	data, err := c.FetchImage(context.Background(), "37.1000,127.0000.jpg")
	require.NoError(t, err)
	assert.Equal(t, "full", string(data))

	data, err = c.FetchThumbnail(context.Background(), "37.1000,127.0000.jpg", 32, 24)
	require.NoError(t, err)
	assert.Equal(t, "thumb", string(data))
}

func TestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "File not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchImage(context.Background(), "missing.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}
