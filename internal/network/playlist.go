package network

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ResolveStreamURL resolves playlist URLs (.m3u, .m3u8, .pls) to the first
// stream URL they reference. Non-playlist URLs pass through unchanged.
func ResolveStreamURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".m3u", ".m3u8", ".pls":
	default:
		return rawURL, nil
	}

	client := resty.New().SetTimeout(30 * time.Second)
	resp, err := client.R().Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch playlist: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("playlist returned status %d", resp.StatusCode())
	}

	var target string
	if ext == ".pls" {
		target = parsePLS(string(resp.Body()))
	} else {
		target = parseM3U(string(resp.Body()))
	}
	if target == "" {
		return "", fmt.Errorf("playlist at %s contains no stream entries", rawURL)
	}
	return target, nil
}

func parseM3U(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

func parsePLS(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToLower(line), "file") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		return strings.TrimSpace(line[eq+1:])
	}
	return ""
}
