package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpclient "traffic-duplicator/internal/common/http"
	"traffic-duplicator/internal/models"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) NeedsAnswer(path string) bool {
	return m.Called(path).Bool(0)
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req *models.Request) bool {
	return m.Called(ctx, req).Bool(0)
}

func (m *MockDispatcher) Mode() string {
	return m.Called().String(0)
}

func (m *MockDispatcher) Threads() int {
	return m.Called().Int(0)
}

func (m *MockDispatcher) QueueSize() int {
	return m.Called().Int(0)
}

func dispatchedRequest(t *testing.T, m *MockDispatcher) *models.Request {
	t.Helper()
	for _, call := range m.Calls {
		if call.Method == "Dispatch" {
			return call.Arguments.Get(1).(*models.Request)
		}
	}
	t.Fatal("Dispatch was not called")
	return nil
}

func TestDuplicate_NoOrigin(t *testing.T) {
	d := &MockDispatcher{}
	d.On("NeedsAnswer", "/api/items").Return(false)
	d.On("Dispatch", mock.Anything, mock.Anything).Return(true)

	h := New(d, nil, "")

	r := httptest.NewRequest("POST", "http://front.local/api/items?a=1&b=%20x", strings.NewReader("k=v"))
	r.Header.Set("X-Zeta", "z")
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	h.Duplicate(rr, r)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	d.AssertExpectations(t)

	req := dispatchedRequest(t, d)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/api/items", req.Path)
	assert.Equal(t, "a=1&b=%20x", req.Args)
	assert.Equal(t, []byte("k=v"), req.Body)
	assert.Nil(t, req.Answer)
	require.Len(t, req.Headers, 3)
	assert.Equal(t, models.Header{Name: "Host", Value: "front.local"}, req.Headers[0])
	assert.Equal(t, "Content-Type", req.Headers[1].Name)
	assert.Equal(t, "X-Zeta", req.Headers[2].Name)
}

func TestDuplicate_ProxiesAndCapturesAnswer(t *testing.T) {
	var originPath, originBody string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originPath = r.URL.RequestURI()
		b, _ := io.ReadAll(r.Body)
		originBody = string(b)
		w.Header().Set("X-Origin", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer origin.Close()

	client := httpclient.NewClient()
	defer client.Close()

	d := &MockDispatcher{}
	d.On("NeedsAnswer", "/orders").Return(true)
	d.On("Dispatch", mock.Anything, mock.Anything).Return(true)

	h := New(d, client, origin.URL+"/")

	rr := httptest.NewRecorder()
	h.Duplicate(rr, httptest.NewRequest("PUT", "/orders?id=7", strings.NewReader("payload")))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "created", rr.Body.String())
	assert.Equal(t, "yes", rr.Header().Get("X-Origin"))
	assert.Equal(t, "/orders?id=7", originPath)
	assert.Equal(t, "payload", originBody)

	req := dispatchedRequest(t, d)
	require.NotNil(t, req.Answer)
	assert.Equal(t, http.StatusCreated, req.Answer.Status)
	assert.Equal(t, []byte("created"), req.Answer.Body)
	assert.Equal(t, "yes", httpclient.HeaderValue(req.Answer.Headers, "X-Origin"))
}

func TestDuplicate_OriginDown(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	url := origin.URL
	origin.Close()

	client := httpclient.NewClient()
	defer client.Close()

	d := &MockDispatcher{}
	d.On("NeedsAnswer", "/x").Return(false)
	d.On("Dispatch", mock.Anything, mock.Anything).Return(false)

	h := New(d, client, url)

	rr := httptest.NewRecorder()
	h.Duplicate(rr, httptest.NewRequest("GET", "/x", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	d.AssertCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestDuplicate_BodyTooLarge(t *testing.T) {
	d := &MockDispatcher{}
	h := New(d, nil, "")

	rr := httptest.NewRecorder()
	h.Duplicate(rr, httptest.NewRequest("POST", "/x", strings.NewReader(strings.Repeat("a", MaxBodySize+1))))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestDuplicate_BodyReadFailure(t *testing.T) {
	d := &MockDispatcher{}
	h := New(d, nil, "")

	rr := httptest.NewRecorder()
	h.Duplicate(rr, httptest.NewRequest("POST", "/x", brokenBody{}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestHealthCheck(t *testing.T) {
	d := &MockDispatcher{}
	d.On("Mode").Return("asynchronous")
	d.On("Threads").Return(3)
	d.On("QueueSize").Return(12)

	h := New(d, nil, "")

	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest("GET", "/_dup/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, "asynchronous", status["mode"])
	assert.Equal(t, float64(3), status["threads"])
	assert.Equal(t, float64(12), status["queued"])
}
