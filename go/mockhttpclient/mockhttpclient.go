package mockhttpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// MockResponse is a canned response for one URL.
type MockResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
}

// URLMock implements http.RoundTripper but returns mocked responses. It
// provides two methods for mocking responses to requests for particular URLs:
//
//   - Mock: Adds a fake response for the given URL to be used every time a
//     request is made for that URL.
//
//   - MockOnce: Adds a fake response for the given URL to be used one time.
//     MockOnce may be called multiple times for the same URL in order to
//     simulate the response changing over time. Takes precedence over mocks
//     specified using Mock.
//
// Examples:
//
//	// Mock out a URL to always respond with the same body.
//	m := NewURLMock()
//	m.Mock("https://hg.example.org/json-pushes?changeset=abc", []byte(`{"1": {...}}`))
//	res, _ := m.Client().Get("https://hg.example.org/json-pushes?changeset=abc")
//
//	// Mock out a URL to fail with a status code.
//	m.MockStatus("https://archive.example.org/2020/01/", http.StatusNotFound, nil)
//
// URLMock is safe for concurrent use and counts the requests it has served.
type URLMock struct {
	mtx        sync.Mutex
	mockAlways map[string]MockResponse
	mockOnce   map[string][]MockResponse
	requests   map[string]int
}

// Mock adds a mocked response for the given URL; whenever this URLMock is used
// as a transport for an http.Client, requests to the given URL will always
// receive the given body in their responses. Mocks specified using Mock() are
// independent of those specified MockOnce(), except that those specified using
// MockOnce() take precedence when present.
func (m *URLMock) Mock(url string, body []byte) {
	m.MockStatus(url, http.StatusOK, body)
}

// MockStatus is like Mock but responds with the given status code.
func (m *URLMock) MockStatus(url string, code int, body []byte) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.mockAlways[url] = MockResponse{Body: body, StatusCode: code}
}

// MockOnce adds a mocked response for the given URL, to be used exactly once.
// Mocks are stored in a FIFO queue and removed from the queue as they are
// requested. Therefore, multiple requests to the same URL must each correspond
// to a call to MockOnce, in the same order that the requests will be made.
// Mocks specified this way are independent of those specified using Mock(),
// except that those specified using MockOnce() take precedence when present.
func (m *URLMock) MockOnce(url string, body []byte) {
	m.MockOnceStatus(url, http.StatusOK, body)
}

// MockOnceStatus is like MockOnce but responds with the given status code.
func (m *URLMock) MockOnceStatus(url string, code int, body []byte) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.mockOnce[url] = append(m.mockOnce[url], MockResponse{Body: body, StatusCode: code})
}

// Client returns an http.Client instance which uses the URLMock.
func (m *URLMock) Client() *http.Client {
	return &http.Client{
		Transport: m,
	}
}

// RoundTrip is an implementation of http.RoundTripper.RoundTrip. It fakes
// responses for requests to URLs based on past calls to Mock() and MockOnce().
func (m *URLMock) RoundTrip(r *http.Request) (*http.Response, error) {
	url := r.URL.String()
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.requests[url]++
	var resp *MockResponse
	if resps := m.mockOnce[url]; len(resps) > 0 {
		resp = &resps[0]
		m.mockOnce[url] = resps[1:]
	} else if data, ok := m.mockAlways[url]; ok {
		resp = &data
	}
	if resp == nil {
		return nil, fmt.Errorf("Unknown URL %q", url)
	}
	header := http.Header{}
	for k, v := range resp.Header {
		header[k] = v
	}
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	return &http.Response{
		Body:          &respBodyCloser{bytes.NewReader(resp.Body)},
		Status:        http.StatusText(resp.StatusCode),
		StatusCode:    resp.StatusCode,
		Header:        header,
		ContentLength: int64(len(resp.Body)),
		Request:       r,
	}, nil
}

// Requests returns how many times the given URL was requested.
func (m *URLMock) Requests(url string) int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.requests[url]
}

// Empty returns true iff all of the URLs registered via MockOnce() have been
// used.
func (m *URLMock) Empty() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for _, resps := range m.mockOnce {
		if len(resps) > 0 {
			return false
		}
	}
	return true
}

// respBodyCloser is a wrapper which lets us pretend to implement io.ReadCloser
// by wrapping a bytes.Reader.
type respBodyCloser struct {
	io.Reader
}

// Close is a stub method which lets us pretend to implement io.ReadCloser.
func (r respBodyCloser) Close() error {
	return nil
}

// NewURLMock returns an empty URLMock instance.
func NewURLMock() *URLMock {
	return &URLMock{
		mockAlways: map[string]MockResponse{},
		mockOnce:   map[string][]MockResponse{},
		requests:   map[string]int{},
	}
}

// New returns a new mocked HTTPClient.
func New(urlMap map[string][]byte) *http.Client {
	m := NewURLMock()
	for k, v := range urlMap {
		m.Mock(k, v)
	}
	return m.Client()
}
