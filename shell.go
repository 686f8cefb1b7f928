package shellcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/always-cache/shell-cache/agent"
	"github.com/always-cache/shell-cache/cache"
	responsetransformer "github.com/always-cache/shell-cache/pkg/response-transformer"
	"github.com/always-cache/shell-cache/rfc9111"
	"github.com/always-cache/shell-cache/rfc9211"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const DefaultInstallRetry = 30 * time.Second

type Config struct {
	// Storage for cache buckets.
	Cache cache.Storage
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Handler serving the app shell in-process. Takes precedence over OriginURL.
	Handler http.Handler
	// Public URL of the app, used to resolve the manifest.
	// Defaults to OriginURL, or http://localhost/ when serving a Handler.
	Scope *url.URL
	// Agent version, i.e. the bucket name.
	Version string
	// Assets to cache at install time.
	Manifest agent.Manifest
	// Manifest entry served to navigations when offline.
	OfflinePage string
	// Header rules applied to every response before it is sent.
	Rules responsetransformer.Rules
	// Interval between install attempts. Defaults to DefaultInstallRetry.
	InstallRetry time.Duration
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Shell hosts an agent: it drives its lifecycle and dispatches every incoming request to it.
type Shell struct {
	agent        *agent.Agent
	cache        cache.Storage
	rules        responsetransformer.Rules
	installRetry time.Duration
	log          zerolog.Logger
	ready        chan struct{}
	readyOnce    sync.Once
}

// CreateShell sets up the shell and its agent.
// The agent is not installed until Start is called.
func CreateShell(config Config) (*Shell, error) {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}

	if config.Cache == nil {
		return nil, fmt.Errorf("no cache storage configured")
	}

	scope := config.Scope
	var fetcher agent.Fetcher
	switch {
	case config.Handler != nil:
		if scope == nil {
			scope = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
		}
		fetcher = newHandlerFetcher(config.Handler, scope)
		logger = logger.With().Str("scope", scope.String()).Logger()
	case config.OriginURL.Host != "":
		if scope == nil {
			origin := config.OriginURL
			origin.Path = "/"
			scope = &origin
		}
		fetcher = newOriginFetcher(config.OriginURL, config.OriginHost, scope)
		logger = logger.With().Str("origin", config.OriginURL.String()).Logger()
	default:
		return nil, fmt.Errorf("need either an origin URL or a handler")
	}

	a, err := agent.New(agent.Config{
		Storage:     config.Cache,
		Version:     config.Version,
		Manifest:    config.Manifest,
		OfflinePage: config.OfflinePage,
		Scope:       scope,
		Fetcher:     fetcher,
		Logger:      &logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Shell{
		agent:        a,
		cache:        config.Cache,
		rules:        config.Rules,
		installRetry: config.InstallRetry,
		log:          logger,
		ready:        make(chan struct{}),
	}
	if s.installRetry <= 0 {
		s.installRetry = DefaultInstallRetry
	}
	return s, nil
}

// Agent returns the hosted agent.
func (s *Shell) Agent() *agent.Agent {
	return s.agent
}

// ServeHTTP implements the http.Handler interface.
// Requests are dispatched to the agent as fetch events once it controls clients,
// until then they go straight to the origin.
func (s *Shell) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := getLogger(r, s.log)
	defer s.escapeHatch(w, r, logger)

	if !s.agent.Claimed() {
		s.bypass(w, r, logger)
		return
	}

	result, err := s.agent.OnFetch(r.Context(), r)
	if errors.Is(err, agent.ErrNotActive) || errors.Is(err, agent.ErrTerminated) {
		s.bypass(w, r, logger)
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("url", r.URL.String()).Msg("Could not get response")
		cs := rfc9211.CacheStatus{}
		cs.Forward(fwdReasonFor(r))
		w.Header().Set("Cache-Status", cs.String())
		http.Error(w, "Could not get response", http.StatusBadGateway)
		return
	}
	s.send(w, r, result.Response, cacheStatusFor(r, result), logger)
}

func (s *Shell) bypass(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger) {
	cs := rfc9211.CacheStatus{}
	cs.Forward(rfc9211.FwdReasonBypass)
	res, err := s.agent.Forward(r.Context(), r)
	if err != nil {
		logger.Error().Err(err).Str("url", r.URL.String()).Msg("Could not bypass to origin")
		w.Header().Set("Cache-Status", cs.String())
		http.Error(w, "Could not get response", http.StatusBadGateway)
		return
	}
	s.send(w, r, res, cs, logger)
}

func (s *Shell) send(w http.ResponseWriter, r *http.Request, res *http.Response, cs rfc9211.CacheStatus, logger *zerolog.Logger) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	s.rules.Apply(res)
	copyHeader(w.Header(), rfc9111.StorableHeader(res.Header))
	w.Header().Set("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	var bytesWritten int64
	if res.Body != nil {
		var err error
		if bytesWritten, err = io.Copy(w, res.Body); err != nil {
			logger.Error().Err(err).Msg("Could not write response body to client")
		}
	}
	logRequest(logger, r, res.StatusCode, cs)
	logger.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

// escapeHatch turns a panic while handling the request into a bad gateway response.
func (s *Shell) escapeHatch(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger) {
	if rec := recover(); rec != nil {
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		logger.Error().Interface("panic", rec).Str("url", r.URL.String()).Msg("Recovered from panic")
		http.Error(w, "Could not get response", http.StatusBadGateway)
	}
}

// Shutdown stops dispatching events to the agent, waits for the outstanding ones
// and closes the storage.
func (s *Shell) Shutdown(ctx context.Context) error {
	if err := s.agent.Terminate(ctx); err != nil {
		return err
	}
	return s.cache.Close()
}

// Middleware returns a shell in front of next, using next as the origin.
// The shell is started in the background and stops when ctx ends.
// If the shell cannot be created, next is returned as is.
func Middleware(ctx context.Context, config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		config.Handler = next
		s, err := CreateShell(config)
		if err != nil {
			log.Error().Err(err).Msg("Could not create shell, serving without it")
			return next
		}
		go s.Start(ctx)
		return s
	}
}

func logRequest(logger *zerolog.Logger, r *http.Request, status int, cs rfc9211.CacheStatus) {
	isHit := 0
	if cs.Status == rfc9211.StatusHit {
		isHit = 1
	}
	logger.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Int("code", status).
		Str("status", string(cs.Status)).
		Str("fwd", string(cs.FwdReason)).
		Str("detail", cs.Detail).
		Bool("stored", cs.Stored).
		Int("hit", isHit).
		Msg("Sending response to client")
}

// getLogger returns the logger from the request context.
// If no logger is found, it will return the fallback.
func getLogger(r *http.Request, fallback zerolog.Logger) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		return &fallback
	}
	return logger
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
