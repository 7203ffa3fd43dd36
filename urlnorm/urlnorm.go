// Package urlnorm turns arbitrary page URLs into canonical room keys.
//
// Two inputs that refer to the same page produce the same key: the scheme defaults to https (plain http is
// folded into https), the host is lowercased and converted to its ASCII (punycode) form, default ports, user
// info, fragments and trailing slashes are dropped and query parameters are sorted.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/net/idna"
)

const (
	defaultScheme    = "https"
	DefaultCacheSize = 1024
)

var ErrEmptyUrl = errors.New("empty url")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// Normalize returns the canonical form of rawUrl.
func Normalize(rawUrl string) (string, error) {
	s := strings.TrimSpace(rawUrl)
	if s == "" {
		return "", ErrEmptyUrl
	}
	switch {
	case strings.HasPrefix(s, "//"):
		s = defaultScheme + ":" + s
	case !strings.Contains(s, "://"):
		s = defaultScheme + "://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("could not parse url %q: %w", rawUrl, err)
	}
	origScheme := strings.ToLower(u.Scheme)
	scheme := origScheme
	if scheme == "http" {
		scheme = defaultScheme
	}
	host := canonicalHost(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawUrl)
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != defaultPorts[origScheme] && port != defaultPorts[scheme] {
		host = host + ":" + port
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		if q := u.Query().Encode(); q != "" {
			b.WriteByte('?')
			b.WriteString(q)
		}
	}
	return b.String(), nil
}

func canonicalHost(host string) string {
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(ascii)
}

// Normalizer memoizes Normalize results in an LRU cache. It is safe for concurrent use.
type Normalizer struct {
	cache *lru.Cache
}

func NewNormalizer(size int) (*Normalizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Normalizer{cache: cache}, nil
}

func (n *Normalizer) Normalize(rawUrl string) (string, error) {
	if v, ok := n.cache.Get(rawUrl); ok {
		return v.(string), nil
	}
	normalized, err := Normalize(rawUrl)
	if err != nil {
		return "", err
	}
	n.cache.Add(rawUrl, normalized)
	return normalized, nil
}
