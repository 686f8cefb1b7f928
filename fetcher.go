package shellcache

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"

	tee "github.com/always-cache/shell-cache/pkg/response-writer-tee"
)

// originFetcher sends requests within the scope to the origin server.
// Other requests are sent as is.
type originFetcher struct {
	scheme     string
	host       string
	hostHeader string
	scopeHost  string
	client     *http.Client
}

func newOriginFetcher(origin url.URL, originHost string, scope *url.URL) *originFetcher {
	hostHeader := origin.Host
	transport := http.DefaultTransport
	if originHost != "" {
		hostHeader = originHost
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		}
	}
	return &originFetcher{
		scheme:     origin.Scheme,
		host:       origin.Host,
		hostHeader: hostHeader,
		scopeHost:  scope.Host,
		client: &http.Client{
			Transport: transport,
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *originFetcher) Do(req *http.Request) (*http.Response, error) {
	if strings.EqualFold(req.URL.Host, f.scopeHost) {
		req.URL.Scheme = f.scheme
		req.URL.Host = f.host
		req.Host = f.hostHeader
	}
	return f.client.Do(req)
}

// handlerFetcher serves requests within the scope from an in-process handler.
type handlerFetcher struct {
	handler   http.Handler
	scopeHost string
	client    *http.Client
}

func newHandlerFetcher(handler http.Handler, scope *url.URL) *handlerFetcher {
	return &handlerFetcher{
		handler:   handler,
		scopeHost: scope.Host,
		client:    http.DefaultClient,
	}
}

func (f *handlerFetcher) Do(req *http.Request) (*http.Response, error) {
	if !strings.EqualFold(req.URL.Host, f.scopeHost) {
		return f.client.Do(req)
	}
	// handlers expect server requests
	req.RequestURI = req.URL.RequestURI()
	if req.Host == "" {
		req.Host = req.URL.Host
	}
	rw := tee.NewResponseSaver(nil)
	f.handler.ServeHTTP(rw, req)
	return rw.Result(req), nil
}
