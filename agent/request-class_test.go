package agent

import (
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		method string
		header http.Header
		want   RequestClass
	}{
		{"navigate mode", "GET", http.Header{"Sec-Fetch-Mode": {"navigate"}}, ClassNavigation},
		{"cors mode with html accept", "GET", http.Header{"Sec-Fetch-Mode": {"cors"}, "Accept": {"text/html"}}, ClassSubresource},
		{"no-cors mode", "GET", http.Header{"Sec-Fetch-Mode": {"no-cors"}}, ClassSubresource},
		{"browser accept", "GET", http.Header{"Accept": {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"}}, ClassNavigation},
		{"stylesheet accept", "GET", http.Header{"Accept": {"text/css,*/*;q=0.1"}}, ClassSubresource},
		{"no headers", "GET", http.Header{}, ClassSubresource},
		{"form post", "POST", http.Header{"Accept": {"text/html"}}, ClassSubresource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, "/", nil)
			req.Header = tt.header
			if got := Classify(req); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
