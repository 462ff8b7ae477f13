// Package handlers exposes the duplicator as an HTTP host: every inbound
// request is answered (locally or by the origin) and then duplicated.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	httpclient "traffic-duplicator/internal/common/http"
	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/models"
)

// MaxBodySize caps the inbound body kept for duplication
const MaxBodySize = 10 << 20

// Dispatcher is the part of the dispatcher the host drives
type Dispatcher interface {
	NeedsAnswer(path string) bool
	Dispatch(ctx context.Context, req *models.Request) bool
	Mode() string
	Threads() int
	QueueSize() int
}

// Handlers answers inbound requests and feeds them to the dispatcher
type Handlers struct {
	dispatcher Dispatcher
	origin     httpclient.Performer
	originURL  string
	logger     logging.Logger
}

// New creates the handlers. With a nil origin every request is answered
// with 204 No Content.
func New(dispatcher Dispatcher, origin httpclient.Performer, originURL string) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		origin:     origin,
		originURL:  strings.TrimRight(originURL, "/"),
		logger: logging.GetGlobalLogger().WithFields(
			logging.Field{Key: "component", Value: "handlers"},
		),
	}
}

// Duplicate answers the request, then hands it to the dispatcher
func (h *Handlers) Duplicate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("Failed to read request body", logging.Err(err), logging.String("path", r.URL.Path))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	req := newRequest(r, body)
	ctx := logging.ContextWithRequestID(context.WithoutCancel(r.Context()), req.ID)

	answer := h.answer(ctx, req)
	if h.dispatcher.NeedsAnswer(req.Path) {
		req.Answer = answer
	}

	writeAnswer(w, answer)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if !h.dispatcher.Dispatch(ctx, req) {
		h.logger.WithContext(ctx).Debug("Request not duplicated",
			logging.Field{Key: "path", Value: req.Path},
		)
	}
}

// HealthCheck reports the dispatch mode and pool occupancy
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"mode":      h.dispatcher.Mode(),
		"threads":   h.dispatcher.Threads(),
		"queued":    h.dispatcher.QueueSize(),
	}
	h.sendJSONResponse(w, status)
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

func (h *Handlers) answer(ctx context.Context, req *models.Request) *models.Answer {
	if h.origin == nil {
		return &models.Answer{Status: http.StatusNoContent}
	}

	url := h.originURL + req.Path
	if req.Args != "" {
		url += "?" + req.Args
	}
	resp, err := h.origin.Perform(ctx, &httpclient.Request{
		Method:  req.Method,
		URL:     url,
		Headers: req.Headers,
		Body:    req.Body,
	})
	if err != nil {
		h.logger.WithContext(ctx).Warn("Origin request failed",
			logging.Field{Key: "origin", Value: h.originURL},
			logging.Err(err),
		)
		return &models.Answer{Status: http.StatusBadGateway}
	}
	return &models.Answer{Status: resp.StatusCode, Headers: resp.Headers, Body: resp.Body}
}

// newRequest snapshots r. Headers are sorted by name with Host first.
func newRequest(r *http.Request, body []byte) *models.Request {
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]models.Header, 0, len(names)+1)
	if r.Host != "" {
		headers = append(headers, models.Header{Name: "Host", Value: r.Host})
	}
	for _, name := range names {
		for _, value := range r.Header[name] {
			headers = append(headers, models.Header{Name: name, Value: value})
		}
	}

	return &models.Request{
		ID:         uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		Args:       r.URL.RawQuery,
		Body:       body,
		Headers:    headers,
		ReceivedAt: time.Now(),
	}
}

var skippedAnswerHeaders = map[string]bool{
	"Content-Length":    true,
	"Connection":        true,
	"Transfer-Encoding": true,
	"Keep-Alive":        true,
}

func writeAnswer(w http.ResponseWriter, answer *models.Answer) {
	for _, h := range answer.Headers {
		if skippedAnswerHeaders[http.CanonicalHeaderKey(h.Name)] {
			continue
		}
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(answer.Status)
	if len(answer.Body) > 0 {
		_, _ = w.Write(answer.Body)
	}
}
