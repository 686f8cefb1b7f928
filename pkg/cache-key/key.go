package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var ErrorMalformedKey = fmt.Errorf("Malformed key")

const methodSeparator = ":"

// CacheKeyer turns request descriptors (method + URL) into cache keys and back.
// Requests within the scope are keyed on their request URI only, so that a request
// arriving at the server ("/index.html") and a manifest entry resolved against the
// scope ("http://shell.local/index.html") share a key.
// Everything else (cross-origin requests) is keyed on the absolute URL.
type CacheKeyer struct {
	Scope *url.URL
}

func NewCacheKeyer(scope *url.URL) CacheKeyer {
	if scope == nil {
		scope = &url.URL{Path: "/"}
	}
	return CacheKeyer{Scope: scope}
}

// GetKey returns the cache key for the request.
func (c CacheKeyer) GetKey(r *http.Request) string {
	return r.Method + methodSeparator + c.keyURI(r.URL)
}

// Resolve resolves a possibly relative reference (e.g. a manifest entry) against the scope.
func (c CacheKeyer) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return c.Scope.ResolveReference(u), nil
}

// GetRequestFromKey generates a request equal (caching-wise) to the one that resulted in the key.
func (c CacheKeyer) GetRequestFromKey(key string) (*http.Request, error) {
	method, uri, found := strings.Cut(key, methodSeparator)
	if !found || method == "" || uri == "" {
		return nil, fmt.Errorf("%w: %s", ErrorMalformedKey, key)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrorMalformedKey, key)
	}
	if !u.IsAbs() {
		u = c.Scope.ResolveReference(u)
	}
	return http.NewRequest(method, u.String(), nil)
}

func (c CacheKeyer) keyURI(u *url.URL) string {
	if u.Host == "" || c.inScope(u) {
		uri := u.RequestURI()
		// a bare "?" carries no query
		return strings.TrimSuffix(uri, "?")
	}
	clean := *u
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.String()
}

func (c CacheKeyer) inScope(u *url.URL) bool {
	return c.Scope.Host != "" &&
		strings.EqualFold(u.Host, c.Scope.Host) &&
		(u.Scheme == "" || u.Scheme == c.Scope.Scheme)
}
