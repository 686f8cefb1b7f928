package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/always-cache/shell-cache/cache"
	cachekey "github.com/always-cache/shell-cache/pkg/cache-key"
	serializer "github.com/always-cache/shell-cache/pkg/response-serializer"
	"github.com/always-cache/shell-cache/rfc9111"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInstallFailed = errors.New("install failed")
	ErrNotActive     = errors.New("agent not active")
	// ErrOffline is returned for navigations when the network, the cached copy and the offline page all failed.
	ErrOffline = errors.New("offline and no fallback available")
)

// Fetcher performs network requests. *http.Client satisfies it.
type Fetcher interface {
	Do(*http.Request) (*http.Response, error)
}

type Config struct {
	// Storage for cache buckets.
	Storage cache.Storage
	// Name of the bucket owned by this agent version. Defaults to DefaultVersion.
	Version string
	// Assets to cache at install time. Defaults to DefaultManifest.
	Manifest Manifest
	// Manifest entry served to navigations when offline. Defaults to DefaultOfflinePage.
	OfflinePage string
	// Base URL the manifest entries are resolved against.
	// Requests without a host are assumed to be within the scope.
	Scope *url.URL
	// Network access.
	Fetcher Fetcher
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Agent is the asset cache manager of one version of the app shell.
// It is driven by its host through OnInstall, OnActivate and OnFetch.
type Agent struct {
	storage     cache.Storage
	version     string
	manifest    Manifest
	offlinePage string
	keyer       cachekey.CacheKeyer
	fetcher     Fetcher
	log         zerolog.Logger
	guard       *Guard

	mutex       sync.RWMutex
	state       State
	bucket      cache.Bucket
	skipWaiting bool
	claimed     bool
}

// FetchResult is the response to an intercepted fetch, along with where it came from.
type FetchResult struct {
	Response *http.Response
	Source   Source
	// Stored is set if a copy of the response was written to the bucket.
	Stored bool
}

type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	// SourceOfflineCopy is a cached copy served to a navigation because the network failed.
	SourceOfflineCopy Source = "offline"
	// SourceOfflinePage is the offline page served to a navigation that was never cached.
	SourceOfflinePage Source = "offline-page"
)

// New creates the agent. It does not install it.
func New(config Config) (*Agent, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("no storage configured")
	}
	if config.Fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	a := &Agent{
		storage:     config.Storage,
		version:     config.Version,
		manifest:    config.Manifest,
		offlinePage: config.OfflinePage,
		keyer:       cachekey.NewCacheKeyer(config.Scope),
		fetcher:     config.Fetcher,
		guard:       NewGuard(),
	}
	if a.version == "" {
		a.version = DefaultVersion
	}
	if a.manifest == nil {
		a.manifest = DefaultManifest
	}
	if a.offlinePage == "" {
		a.offlinePage = DefaultOfflinePage
	}
	if err := a.manifest.Validate(); err != nil {
		return nil, err
	}

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = log.Logger
	} else {
		logger = *config.Logger
	}
	a.log = logger.With().Str("version", a.version).Logger()
	if !a.manifest.Contains(a.offlinePage) {
		a.log.Warn().Str("offlinePage", a.offlinePage).Msg("Offline page is not part of the manifest, navigations may fail offline")
	}

	return a, nil
}

func (a *Agent) Version() string {
	return a.version
}

func (a *Agent) State() State {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.state
}

// SkipWaiting reports whether the agent asked to be activated right after install,
// without waiting for existing clients to go away.
func (a *Agent) SkipWaiting() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.skipWaiting
}

// Claimed reports whether the agent controls already connected clients.
func (a *Agent) Claimed() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.claimed
}

// Guard returns the lifetime guard of the agent.
func (a *Agent) Guard() *Guard {
	return a.guard
}

// Terminate refuses new events and waits for the outstanding ones.
func (a *Agent) Terminate(ctx context.Context) error {
	a.log.Debug().Int("outstanding", a.guard.Outstanding()).Msg("Terminating agent")
	return a.guard.Close(ctx)
}

// Cached lists the URLs of the requests stored in the current bucket, in insertion order.
func (a *Agent) Cached() ([]string, error) {
	a.mutex.RLock()
	bucket := a.bucket
	a.mutex.RUnlock()
	if bucket == nil {
		return nil, ErrNotActive
	}
	keys, err := bucket.Keys()
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		req, err := a.keyer.GetRequestFromKey(key)
		if err != nil {
			a.log.Warn().Err(err).Str("key", key).Msg("Skipping malformed key")
			continue
		}
		urls = append(urls, req.Method+" "+req.URL.String())
	}
	return urls, nil
}

// OnInstall populates the bucket with every asset in the manifest.
// Either all assets are stored or none; a failed install leaves the agent redundant
// and may be retried.
func (a *Agent) OnInstall(ctx context.Context) error {
	release, err := a.guard.Extend()
	if err != nil {
		return err
	}
	defer release()

	if ok, err := a.transition(StateInstalling, StateParsed, StateRedundant); err != nil {
		return err
	} else if !ok {
		// already installed
		return nil
	}
	a.log.Debug().Int("assets", len(a.manifest)).Msg("Installing")

	if err := a.install(ctx); err != nil {
		a.setState(StateRedundant)
		a.log.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	a.mutex.Lock()
	a.state = StateWaiting
	a.skipWaiting = true
	a.mutex.Unlock()
	a.log.Info().Msg("Installed")
	return nil
}

func (a *Agent) install(ctx context.Context) error {
	bucket, err := a.storage.Open(a.version)
	if err != nil {
		return err
	}

	entries := make([]cache.CacheEntry, len(a.manifest))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range a.manifest {
		g.Go(func() error {
			entry, err := a.fetchAsset(gctx, ref)
			if err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return bucket.PutAll(entries)
}

func (a *Agent) fetchAsset(ctx context.Context, ref string) (cache.CacheEntry, error) {
	u, err := a.keyer.Resolve(ref)
	if err != nil {
		return cache.CacheEntry{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cache.CacheEntry{}, err
	}
	res, err := a.fetcher.Do(req)
	if err != nil {
		return cache.CacheEntry{}, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return cache.CacheEntry{}, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return a.entry(req, res)
}

// OnActivate deletes every bucket but the current one and takes control of clients.
func (a *Agent) OnActivate(ctx context.Context) error {
	release, err := a.guard.Extend()
	if err != nil {
		return err
	}
	defer release()

	if ok, err := a.transition(StateActivating, StateWaiting); err != nil {
		return err
	} else if !ok {
		return nil
	}

	bucket, err := a.activate(ctx)
	if err != nil {
		a.setState(StateWaiting)
		a.log.Error().Err(err).Msg("Activation failed")
		return err
	}

	a.mutex.Lock()
	a.bucket = bucket
	a.state = StateActive
	a.claimed = true
	a.mutex.Unlock()
	a.log.Info().Msg("Activated")
	return nil
}

func (a *Agent) activate(ctx context.Context) (cache.Bucket, error) {
	names, err := a.storage.Keys()
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if name == a.version {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a.log.Debug().Str("bucket", name).Msg("Deleting stale bucket")
			_, err := a.storage.Delete(name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return a.storage.Open(a.version)
}

// OnFetch responds to an intercepted request.
// Navigations go to the network first, falling back to the cached copy and then the offline page.
// Subresources are served from the cache, falling back to the network.
// Only GET requests are cached; everything else goes straight to the network.
func (a *Agent) OnFetch(ctx context.Context, req *http.Request) (*FetchResult, error) {
	release, err := a.guard.Extend()
	if err != nil {
		return nil, err
	}
	defer release()

	a.mutex.RLock()
	state, bucket := a.state, a.bucket
	a.mutex.RUnlock()
	if state != StateActive {
		return nil, ErrNotActive
	}

	log := a.log.With().Str("method", req.Method).Str("url", req.URL.String()).Logger()
	if req.Method != http.MethodGet {
		log.Trace().Msg("Forwarding non-GET request")
		res, err := a.Forward(ctx, req)
		if err != nil {
			return nil, err
		}
		return &FetchResult{Response: res, Source: SourceNetwork}, nil
	}

	if Classify(req) == ClassNavigation {
		return a.networkFirst(ctx, req, bucket, log)
	}
	return a.cacheFirst(ctx, req, bucket, log)
}

func (a *Agent) networkFirst(ctx context.Context, req *http.Request, bucket cache.Bucket, log zerolog.Logger) (*FetchResult, error) {
	res, dup, err := a.fetch(ctx, req)
	if err == nil {
		return &FetchResult{Response: res, Source: SourceNetwork, Stored: a.store(bucket, req, dup, log)}, nil
	}
	log.Warn().Err(err).Msg("Network failed for navigation, falling back")

	if cached, ok := a.match(bucket, req, log); ok {
		return &FetchResult{Response: cached, Source: SourceOfflineCopy}, nil
	}
	if offline, ok := a.matchOfflinePage(bucket, req, log); ok {
		return &FetchResult{Response: offline, Source: SourceOfflinePage}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrOffline, err)
}

func (a *Agent) cacheFirst(ctx context.Context, req *http.Request, bucket cache.Bucket, log zerolog.Logger) (*FetchResult, error) {
	if cached, ok := a.match(bucket, req, log); ok {
		return &FetchResult{Response: cached, Source: SourceCache}, nil
	}
	res, dup, err := a.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &FetchResult{Response: res, Source: SourceNetwork, Stored: a.store(bucket, req, dup, log)}, nil
}

// Forward sends the request to the network without consulting or updating the cache.
// Relative request URLs are resolved against the scope.
func (a *Agent) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	fwd := rfc9111.GetForwardRequest(req).WithContext(ctx)
	fwd.RequestURI = ""
	if !fwd.URL.IsAbs() {
		fwd.URL = a.keyer.Scope.ResolveReference(fwd.URL)
	}
	return a.fetcher.Do(fwd)
}

// fetch sends the request to the network.
// It returns the response along with an independent copy of it.
func (a *Agent) fetch(ctx context.Context, req *http.Request) (*http.Response, *http.Response, error) {
	res, err := a.Forward(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	dup, err := serializer.Clone(res)
	if err != nil {
		return nil, nil, err
	}
	return res, dup, nil
}

// store writes the response to the bucket, overwriting any previous entry.
// Failures are logged only; the response is served either way.
func (a *Agent) store(bucket cache.Bucket, req *http.Request, res *http.Response, log zerolog.Logger) bool {
	if res.StatusCode == http.StatusPartialContent {
		log.Trace().Msg("Not storing partial response")
		return false
	}
	entry, err := a.entry(req, res)
	if err == nil {
		err = bucket.Put(entry)
	}
	if err != nil {
		log.Error().Err(err).Msg("Could not write to cache")
		return false
	}
	log.Trace().Str("key", entry.Key).Msg("Cache write")
	return true
}

func (a *Agent) entry(req *http.Request, res *http.Response) (cache.CacheEntry, error) {
	storedAt := time.Now()
	bytes, err := serializer.StoredResponseToBytes(serializer.StoredResponse{
		Response: res,
		StoredAt: storedAt,
	})
	if err != nil {
		return cache.CacheEntry{}, err
	}
	return cache.CacheEntry{
		Key:      a.keyer.GetKey(req),
		StoredAt: storedAt,
		Bytes:    bytes,
	}, nil
}

// match looks up the GET request in the bucket.
func (a *Agent) match(bucket cache.Bucket, req *http.Request, log zerolog.Logger) (*http.Response, bool) {
	key := a.keyer.GetKey(req)
	entry, ok, err := bucket.Get(key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
		return nil, false
	}
	if !ok {
		log.Trace().Str("key", key).Msg("Cache miss")
		return nil, false
	}
	sRes, err := serializer.BytesToStoredResponse(entry.Bytes, req)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Could not read stored response")
		return nil, false
	}
	log.Trace().Str("key", key).Time("storedAt", sRes.StoredAt).Msg("Cache hit")
	rfc9111.AddAgeHeader(sRes.Response, sRes.StoredAt)
	return sRes.Response, true
}

func (a *Agent) matchOfflinePage(bucket cache.Bucket, req *http.Request, log zerolog.Logger) (*http.Response, bool) {
	u, err := a.keyer.Resolve(a.offlinePage)
	if err != nil {
		log.Error().Err(err).Msg("Could not resolve offline page")
		return nil, false
	}
	offlineReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false
	}
	return a.match(bucket, offlineReq, log)
}

// transition moves to the given state if the agent is in one of the allowed states.
// It returns false without error if the agent is already past the transition.
func (a *Agent) transition(to State, from ...State) (bool, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	for _, s := range from {
		if a.state == s {
			a.state = to
			return true, nil
		}
	}
	if a.state > to && a.state != StateRedundant {
		return false, nil
	}
	return false, fmt.Errorf("cannot move from %s to %s", a.state, to)
}

func (a *Agent) setState(s State) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.state = s
}
