package responsetransformer

import (
	"net/http"
	"testing"
)

func TestRuleFinder(t *testing.T) {
	makeRes := func(method, path string) *http.Response {
		req, _ := http.NewRequest(method, path, nil)
		res := http.Response{Request: req, StatusCode: http.StatusOK}
		return &res
	}

	rules := Rules{
		Rule{Path: "/sw.js", Override: "no-cache"},
		Rule{Prefix: "/icons/", Default: "max-age=86400"},
		Rule{Prefix: "/api", Query: map[string]string{"fresh": ""}, Override: "no-store"},
		Rule{Override: "default"},
	}

	if rule := rules.find(makeRes("GET", "/")); rule == nil || rule.Override != "default" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeRes("GET", "/sw.js")); rule == nil || rule.Override != "no-cache" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeRes("GET", "/icons/icon-192.png")); rule == nil || rule.Default != "max-age=86400" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeRes("GET", "/api?fresh")); rule == nil || rule.Override != "no-store" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeRes("GET", "/api")); rule == nil || rule.Override != "default" {
		t.Fatal("Incorrect rule")
	}
	if rule := rules.find(makeRes("POST", "/")); rule != nil {
		t.Fatal("Incorrect rule")
	}
}

func TestApply(t *testing.T) {
	res := &http.Response{Header: make(http.Header)}
	ruleDefault := Rule{Default: "default"}
	ruleOverride := Rule{Override: "override", Headers: map[string]string{"Service-Worker-Allowed": "/"}}

	// try to apply default
	applyRuleToResponse(ruleDefault, res)
	if cc := res.Header.Get("Cache-Control"); cc != "default" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}

	// change cc and check default is not set
	res.Header.Set("Cache-Control", "no-cache")
	applyRuleToResponse(ruleDefault, res)
	if cc := res.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}

	// check that override works
	applyRuleToResponse(ruleOverride, res)
	if cc := res.Header.Get("Cache-Control"); cc != "override" {
		t.Fatalf("Cache-Control header wrong, is '%s'", cc)
	}
	if h := res.Header.Get("Service-Worker-Allowed"); h != "/" {
		t.Fatalf("Extra header wrong, is '%s'", h)
	}
}

func TestApplySkipsErrors(t *testing.T) {
	req, _ := http.NewRequest("GET", "/", nil)
	res := &http.Response{Request: req, StatusCode: http.StatusNotFound, Header: http.Header{}}
	Rules{Rule{Override: "override"}}.Apply(res)
	if cc := res.Header.Get("Cache-Control"); cc != "" {
		t.Fatalf("Cache-Control set on error response: '%s'", cc)
	}
}
