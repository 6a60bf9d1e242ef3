// internal/automation/upload/fetch_test.go
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

type scriptedPage struct {
	dataURI string
	err     error
	calls   int
	script  string
}

func (s *scriptedPage) Evaluate(_ context.Context, script string, out any) error {
	s.calls++
	s.script = script
	if s.err != nil {
		return s.err
	}
	if p, ok := out.(*string); ok {
		*p = s.dataURI
	}
	return nil
}

func TestFetchDirectSniffsTypeAndName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deliberately wrong header; the sniffer must win.
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pngHeader)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, 5*time.Second, zap.NewNop())
	payload, err := f.Fetch(context.Background(), srv.URL+"/shots/watermark")
	require.NoError(t, err)

	assert.Equal(t, "image/png", payload.MIME)
	assert.Equal(t, "watermark.png", payload.Name, "extension derived from sniffed type")
	assert.Equal(t, pngHeader, payload.Data)
}

func TestFetchKeepsURLExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngHeader)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, 5*time.Second, zap.NewNop())
	payload, err := f.Fetch(context.Background(), srv.URL+"/a/b/pic.png")
	require.NoError(t, err)
	assert.Equal(t, "pic.png", payload.Name)
}

func TestFetchFallsBackToInPageFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	page := &scriptedPage{
		dataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader),
	}
	f := NewFetcher(srv.Client(), page, 5*time.Second, zap.NewNop())

	payload, err := f.Fetch(context.Background(), srv.URL+"/guarded.png")
	require.NoError(t, err)
	assert.Equal(t, 1, page.calls, "fallback ran exactly once")
	assert.Contains(t, page.script, "credentials: 'omit'",
		"the in-page route must never carry the page's session")
	assert.Equal(t, "image/png", payload.MIME)
	assert.Equal(t, pngHeader, payload.Data)
}

func TestFetchBothRoutesFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	page := &scriptedPage{err: errors.New("fetch returned 403")}
	f := NewFetcher(srv.Client(), page, 5*time.Second, zap.NewNop())

	_, err := f.Fetch(context.Background(), srv.URL+"/gone.png")
	require.Error(t, err)

	var de *DownloadError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Error(), "upload it manually")
	assert.Contains(t, de.Error(), srv.URL)
}

func TestFetchEmptyBodyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, 5*time.Second, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL+"/empty.png")
	require.Error(t, err)
	var de *DownloadError
	assert.ErrorAs(t, err, &de)
}

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantMIME string
		wantErr  bool
	}{
		{
			name:     "valid png",
			uri:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader),
			wantMIME: "image/png",
		},
		{name: "not a data uri", uri: "https://example.com/x.png", wantErr: true},
		{name: "missing comma", uri: "data:image/png;base64", wantErr: true},
		{name: "not base64 encoded", uri: "data:text/plain,hello", wantErr: true},
		{name: "bad base64 payload", uri: "data:image/png;base64,%%%", wantErr: true},
		{name: "empty payload", uri: "data:image/png;base64,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, data, err := DecodeDataURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, mime)
			assert.NotEmpty(t, data)
		})
	}
}

// FuzzDecodeDataURI hammers the parser with structured garbage; it must
// never panic and never return success with empty bytes.
func FuzzDecodeDataURI(f *testing.F) {
	f.Add([]byte("data:image/png;base64,iVBORw0KGgo="))
	f.Add([]byte("data:;base64,"))
	f.Add([]byte("data:image/jpeg,raw"))

	f.Fuzz(func(t *testing.T, raw []byte) {
		fc := fuzz.NewConsumer(raw)
		uri, err := fc.GetString()
		if err != nil {
			return
		}
		mime, data, err := DecodeDataURI(uri)
		if err == nil {
			if len(data) == 0 {
				t.Fatalf("decode succeeded with empty payload (mime=%q)", mime)
			}
			if !strings.HasPrefix(uri, "data:") {
				t.Fatalf("decode accepted non data URI %q", uri)
			}
		}
	})
}
