package network

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStreamURL_PassthroughNonPlaylist(t *testing.T) {
	url := "http://example.com/stream.mp3"
	resolved, err := ResolveStreamURL(url)
	require.NoError(t, err)
	assert.Equal(t, url, resolved)
}

func TestResolveStreamURL_M3U(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:-1,Radio\nhttp://stream.example/live\n"))
	}))
	defer server.Close()

	resolved, err := ResolveStreamURL(server.URL + "/list.m3u")
	require.NoError(t, err)
	assert.Equal(t, "http://stream.example/live", resolved)
}

func TestResolveStreamURL_PLS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[playlist]\nNumberOfEntries=1\nFile1=http://stream.example/pls\nTitle1=Radio\n"))
	}))
	defer server.Close()

	resolved, err := ResolveStreamURL(server.URL + "/list.pls")
	require.NoError(t, err)
	assert.Equal(t, "http://stream.example/pls", resolved)
}

func TestResolveStreamURL_EmptyPlaylist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
	}))
	defer server.Close()

	_, err := ResolveStreamURL(server.URL + "/list.m3u")
	assert.Error(t, err)
}

func TestParseM3U(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"simple", "http://a/s\n", "http://a/s"},
		{"with comments", "#EXTM3U\n#EXTINF:-1,x\nhttp://b/s\n", "http://b/s"},
		{"blank lines", "\n\n  \nhttp://c/s", "http://c/s"},
		{"empty", "#EXTM3U\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseM3U(tt.body))
		})
	}
}
