package agent

import (
	"mime"
	"net/http"
	"strings"
)

// RequestClass determines how a fetch is routed.
type RequestClass string

const (
	// ClassNavigation is a top-level document load.
	ClassNavigation RequestClass = "navigation"
	// ClassSubresource is everything else.
	ClassSubresource RequestClass = "subresource"
)

// Classify derives the request class from the Fetch Metadata the browser sends.
// Clients that do not send Sec-Fetch-Mode are classified by asking for HTML.
func Classify(r *http.Request) RequestClass {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		if strings.EqualFold(mode, "navigate") {
			return ClassNavigation
		}
		return ClassSubresource
	}
	if r.Method == http.MethodGet && acceptsHTML(r.Header.Values("Accept")) {
		return ClassNavigation
	}
	return ClassSubresource
}

func acceptsHTML(accept []string) bool {
	for _, value := range accept {
		for _, item := range strings.Split(value, ",") {
			mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(item))
			if err == nil && mediaType == "text/html" {
				return true
			}
		}
	}
	return false
}
