package tee

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResultFromHandler(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("body { }"))
	})
	req := httptest.NewRequest("GET", "/style.css", nil)
	rs := NewResponseSaver(nil)
	handler.ServeHTTP(rs, req)

	res := rs.Result(req)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/css" {
		t.Fatalf("Content-Type is %s", ct)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "body { }" || res.ContentLength != 8 {
		t.Fatalf("Body is '%s' (%d)", body, res.ContentLength)
	}
	if res.Request != req {
		t.Fatal("Request not attached")
	}
}

func TestImplicitOK(t *testing.T) {
	rs := NewResponseSaver(nil)
	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Status is %d", rs.StatusCode())
	}
	rs.Write([]byte("x"))
	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Status is %d", rs.StatusCode())
	}
}

func TestTeeWritesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	rs := NewResponseSaver(rec)
	rs.Header().Set("X-Test", "yes")
	rs.WriteHeader(http.StatusAccepted)
	rs.Write([]byte("Hello world"))

	if rec.Code != http.StatusAccepted || rec.Body.String() != "Hello world" {
		t.Fatalf("Recorder got %d '%s'", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Test") != "yes" {
		t.Fatal("Header not copied")
	}
	body, _ := io.ReadAll(rs.Result(nil).Body)
	if string(body) != "Hello world" {
		t.Fatalf("Saved body is '%s'", body)
	}
}
