package helpers

import (
	"bufio"
	"bytes"
	"net/http"
	"sync"
)

// MockHTTP is http.RoundTripper returning canned raw response.
// Header is raw status line and headers, default "HTTP/1.0 200 OK".
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Header []byte
	Body   []byte
	Err    error

	mu       sync.Mutex
	requests []string
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req.Method+" "+req.URL.String())
	m.mu.Unlock()
	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	header := m.Header
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

// Requests returns "METHOD URL" of each round trip so far.
func (m *MockHTTP) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}
