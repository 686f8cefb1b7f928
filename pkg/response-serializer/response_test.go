package serializer

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func readTestResponse(t *testing.T) *http.Response {
	response := "HTTP/1.1 200 OK\r\nServer: Test\r\nConnection: close\r\nContent-Length: 16\r\n\r\nThis is the body"
	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestResponseToBytesBodyIntact(t *testing.T) {
	res := readTestResponse(t)

	_, err := StoredResponseToBytes(StoredResponse{Response: res, StoredAt: time.Now()})
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if string(body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestStoredResponseSerialization(t *testing.T) {
	res := readTestResponse(t)
	storedAt := time.UnixMilli(time.Now().UnixMilli())

	bts, err := StoredResponseToBytes(StoredResponse{Response: res, StoredAt: storedAt})
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	req, _ := http.NewRequest("GET", "http://shell.local/", nil)
	sRes, err := BytesToStoredResponse(bts, req)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if sRes.Response.Header.Get("Server") != "Test" {
		t.Fatalf("Server header wrong %+v", sRes.Response.Header)
	}
	if sRes.Response.Header.Get(storedAtHeaderName) != "" {
		t.Fatalf("Internal header leaked %+v", sRes.Response.Header)
	}
	if sRes.Response.Header.Get("Connection") != "" {
		t.Fatalf("Hop-by-hop header stored %+v", sRes.Response.Header)
	}
	if !sRes.StoredAt.Equal(storedAt) {
		t.Fatalf("StoredAt is %v, expected %v", sRes.StoredAt, storedAt)
	}
	if sRes.Response.Request != req {
		t.Fatal("Request not attached")
	}
	body, _ := io.ReadAll(sRes.Response.Body)
	if string(body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestCloneBodiesAreIndependent(t *testing.T) {
	res := readTestResponse(t)

	clone, err := Clone(res)
	if err != nil {
		t.Fatal(err)
	}
	first, _ := io.ReadAll(clone.Body)
	second, _ := io.ReadAll(res.Body)
	if string(first) != "This is the body" || string(second) != "This is the body" {
		t.Fatalf("Bodies: '%s' '%s'", first, second)
	}
	clone.Header.Set("Server", "Changed")
	if res.Header.Get("Server") != "Test" {
		t.Fatal("Clone shares header with original")
	}
}

func TestCloneNilBody(t *testing.T) {
	res := &http.Response{StatusCode: http.StatusNoContent, Header: http.Header{}}
	clone, err := Clone(res)
	if err != nil {
		t.Fatal(err)
	}
	if clone.Body != http.NoBody {
		t.Fatal("Expected empty body")
	}
}
