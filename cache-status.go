package shellcache

import (
	"net/http"

	"github.com/always-cache/shell-cache/agent"
	"github.com/always-cache/shell-cache/rfc9211"
)

// cacheStatusFor describes how the agent produced the result.
func cacheStatusFor(r *http.Request, result *agent.FetchResult) rfc9211.CacheStatus {
	cs := rfc9211.CacheStatus{}
	switch result.Source {
	case agent.SourceCache:
		cs.Hit()
	case agent.SourceOfflineCopy, agent.SourceOfflinePage:
		cs.Hit()
		cs.Detail = string(result.Source)
	default:
		cs.Forward(fwdReasonFor(r))
		cs.Stored = result.Stored
	}
	return cs
}

// fwdReasonFor tells why a request handled by the agent went to the network.
func fwdReasonFor(r *http.Request) rfc9211.FwdReason {
	if r.Method != http.MethodGet {
		return rfc9211.FwdReasonMethod
	}
	if agent.Classify(r) == agent.ClassNavigation {
		// navigations always go to the network, even if a response is stored
		return rfc9211.FwdReasonRequest
	}
	return rfc9211.FwdReasonUriMiss
}
