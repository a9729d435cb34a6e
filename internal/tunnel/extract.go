package tunnel

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https://[A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,}(:[0-9]+)?(/[^\s"'|<>]*)?`)

// hosts that tunnel programs mention in banners and help text.
var ignoredHosts = map[string]bool{
	"www.cloudflare.com":        true,
	"developers.cloudflare.com": true,
	"cloudflare.com":            true,
	"github.com":                true,
	"ngrok.com":                 true,
	"dashboard.ngrok.com":       true,
}

// jsonURLKeys are checked in order when a line is a JSON object.
var jsonURLKeys = []string{"url", "public_url", "publicUrl", "tunnel_url", "msg", "message"}

// ExtractURL finds the public tunnel URL in one line of output. Lines that
// are JSON objects are checked field by field first; otherwise the first
// https URL whose host is not a known banner link is returned.
func ExtractURL(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	if strings.HasPrefix(line, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			for _, key := range jsonURLKeys {
				s, ok := obj[key].(string)
				if !ok {
					continue
				}
				if u, ok := firstURL(s); ok {
					return u, true
				}
			}
			return "", false
		}
	}
	return firstURL(line)
}

func firstURL(s string) (string, bool) {
	for _, candidate := range urlPattern.FindAllString(s, -1) {
		candidate = strings.TrimRight(candidate, ".,;)")
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}
		if ignoredHosts[strings.ToLower(u.Hostname())] {
			continue
		}
		return strings.TrimSuffix(candidate, "/"), true
	}
	return "", false
}
