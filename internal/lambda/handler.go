// Package lambda runs the sync server behind API Gateway.
package lambda

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	awsevents "github.com/aws/aws-lambda-go/events"

	"github.com/TheMichaelB/vocabsync/internal/events"
)

// Handler converts API Gateway proxy events into HTTP requests.
type Handler struct {
	next   http.Handler
	logger *events.Logger
}

// NewHandler wraps an HTTP handler, normally a *server.Server.
func NewHandler(next http.Handler, logger *events.Logger) *Handler {
	return &Handler{
		next:   next,
		logger: logger.WithField("component", "lambda"),
	}
}

// Handle serves one API Gateway request.
func (h *Handler) Handle(ctx context.Context, event awsevents.APIGatewayProxyRequest) (awsevents.APIGatewayProxyResponse, error) {
	req, err := h.toHTTPRequest(ctx, event)
	if err != nil {
		h.logger.WithError(err).Warn("Rejected malformed event")
		return awsevents.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"code":"BAD_REQUEST","message":"malformed request"}`,
		}, nil
	}

	h.logger.WithFields(map[string]interface{}{
		"method":     event.HTTPMethod,
		"path":       event.Path,
		"request_id": event.RequestContext.RequestID,
	}).Debug("Processing API Gateway event")

	rw := newResponseWriter()
	h.next.ServeHTTP(rw, req)

	return rw.toProxyResponse(), nil
}

func (h *Handler) toHTTPRequest(ctx context.Context, event awsevents.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		body = decoded
	}

	query := url.Values{}
	for k, vs := range event.MultiValueQueryStringParameters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, v := range event.QueryStringParameters {
		if _, ok := query[k]; !ok {
			query.Set(k, v)
		}
	}

	target := &url.URL{Path: event.Path, RawQuery: query.Encode()}
	req, err := http.NewRequestWithContext(ctx, event.HTTPMethod, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range event.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("X-Request-ID") == "" && event.RequestContext.RequestID != "" {
		req.Header.Set("X-Request-ID", event.RequestContext.RequestID)
	}

	return req, nil
}

// responseWriter buffers a response for conversion into a proxy response.
type responseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: http.Header{}}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *responseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *responseWriter) toProxyResponse() awsevents.APIGatewayProxyResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	headers := make(map[string]string, len(w.header))
	multi := make(map[string][]string, len(w.header))
	for k, vs := range w.header {
		headers[k] = strings.Join(vs, ",")
		multi[k] = vs
	}

	return awsevents.APIGatewayProxyResponse{
		StatusCode:        status,
		Headers:           headers,
		MultiValueHeaders: multi,
		Body:              w.body.String(),
	}
}
