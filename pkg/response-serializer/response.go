package serializer

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/always-cache/shell-cache/rfc9111"
)

const storedAtHeaderName = "Shell-Cache-Stored-At"

type StoredResponse struct {
	Response *http.Response
	// The value of the clock at the time the response was written to the bucket.
	StoredAt time.Time
}

// StoredResponseToBytes returns the HTTP/1.1 representation of the stored response.
// The body of the response is left readable.
func StoredResponseToBytes(sRes StoredResponse) ([]byte, error) {
	body, err := drain(sRes.Response)
	if err != nil {
		return nil, err
	}
	out := *sRes.Response
	out.Header = rfc9111.StorableHeader(sRes.Response.Header)
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Header.Set(storedAtHeaderName, strconv.FormatInt(sRes.StoredAt.UnixMilli(), 10))
	out.TransferEncoding = nil
	out.Trailer = nil
	out.Close = false
	out.ContentLength = int64(len(body))
	out.Body = io.NopCloser(bytes.NewReader(body))
	// always store as HTTP/1.1, whatever the protocol it was received with
	out.ProtoMajor, out.ProtoMinor = 1, 1

	buf := &bytes.Buffer{}
	if err := out.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BytesToStoredResponse reads a response previously serialized with StoredResponseToBytes.
// The request is attached to the response as the one it answers, and may be nil.
func BytesToStoredResponse(b []byte, req *http.Request) (StoredResponse, error) {
	sRes := StoredResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
	if err != nil {
		return sRes, err
	}
	if ms, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64); err == nil {
		sRes.StoredAt = time.UnixMilli(ms)
	}
	res.Header.Del(storedAtHeaderName)
	sRes.Response = res
	return sRes, nil
}

// Clone returns a copy of the response with its own, independently readable body.
// The body of the original response is buffered and stays readable as well.
func Clone(res *http.Response) (*http.Response, error) {
	body, err := drain(res)
	if err != nil {
		return nil, err
	}
	clone := *res
	clone.Header = res.Header.Clone()
	clone.Trailer = res.Trailer.Clone()
	clone.Body = io.NopCloser(bytes.NewReader(body))
	return &clone, nil
}

// drain reads the whole body of the response and puts an equivalent reader back.
func drain(res *http.Response) ([]byte, error) {
	if res.Body == nil || res.Body == http.NoBody {
		res.Body = http.NoBody
		return []byte{}, nil
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
