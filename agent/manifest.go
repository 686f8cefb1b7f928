package agent

import (
	"fmt"
	"net/url"
	"slices"
)

const (
	// DefaultVersion names the bucket of the current build.
	// Bump it whenever DefaultManifest or any of its assets change.
	DefaultVersion     = "recipe-randomizer-v1"
	DefaultOfflinePage = "offline.html"
)

// Manifest is the ordered list of assets, relative to the scope, that make up the offline shell.
type Manifest []string

// DefaultManifest is the app shell of the recipe randomizer.
var DefaultManifest = Manifest{
	"./",
	"index.html",
	"style.css",
	"script.js",
	"manifest.json",
	"icons/icon-192.png",
	"icons/icon-512.png",
	DefaultOfflinePage,
}

// Validate checks that every entry is a valid URL reference.
func (m Manifest) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("manifest is empty")
	}
	for _, ref := range m {
		if _, err := url.Parse(ref); err != nil {
			return fmt.Errorf("invalid manifest entry %q: %w", ref, err)
		}
	}
	return nil
}

// Contains reports whether ref is one of the manifest entries.
func (m Manifest) Contains(ref string) bool {
	return slices.Contains(m, ref)
}
