package webenv

import (
	"net/url"
	"strings"
)

// blockedDomains is the static blocklist bundled with the binary:
// social media walls, low-quality aggregators, and paywalled news
// fronts that defeat extraction.
var blockedDomains = []string{
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"tiktok.com",
	"pinterest.com",
	"reddit.com",
	"quora.com",
	"linkedin.com",
	"youtube.com",
	"answers.com",
	"ehow.com",
	"wsj.com",
	"ft.com",
	"bloomberg.com",
}

// UsableURL reports whether a candidate URL may be fetched: http(s)
// scheme and a domain outside the blocklist.
func UsableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, blocked := range blockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false
		}
	}
	return true
}

// Domain returns the lowercased registered host of a URL, stripping a
// leading "www.".
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
