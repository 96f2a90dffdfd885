package lambda_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/lambda"
	"github.com/TheMichaelB/vocabsync/internal/models"
	"github.com/TheMichaelB/vocabsync/internal/server"
	"github.com/TheMichaelB/vocabsync/internal/storage"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newHandler(t *testing.T) *lambda.Handler {
	t.Helper()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	srv := server.New(storage.NewMemoryStore(), server.Options{
		Tokens: map[string]string{"tok": "u1"},
		Now:    func() time.Time { return now },
	}, logger)
	return lambda.NewHandler(srv, logger)
}

func putBody(t *testing.T, rev int64) string {
	t.Helper()
	file := models.NewVocabFile(now)
	file.Words = append(file.Words, models.WordEntry{ID: "w1", Headword: "apple", Meaning: "fruit"})
	data, err := json.Marshal(models.SyncRequest{ServerRev: &rev, File: file, ClientID: "c1"})
	require.NoError(t, err)
	return string(data)
}

func TestHandlerHealth(t *testing.T) {
	h := newHandler(t)

	resp, err := h.Handle(context.Background(), awsevents.APIGatewayProxyRequest{
		HTTPMethod:     http.MethodGet,
		Path:           "/health",
		RequestContext: awsevents.APIGatewayProxyRequestContext{RequestID: "req-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Headers["X-Request-Id"])
	assert.JSONEq(t, `{"ok":true}`, resp.Body)
}

func TestHandlerRequiresToken(t *testing.T) {
	h := newHandler(t)

	resp, err := h.Handle(context.Background(), awsevents.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/vocab",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerPutThenGet(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()
	auth := map[string]string{"Authorization": "Bearer tok", "Content-Type": "application/json"}

	resp, err := h.Handle(ctx, awsevents.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPut,
		Path:       "/vocab",
		Headers:    auth,
		Body:       putBody(t, 0),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var synced models.SyncResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &synced))
	assert.True(t, synced.OK)
	assert.Equal(t, int64(1), synced.ServerRev)

	resp, err = h.Handle(ctx, awsevents.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/vocab",
		Headers:    auth,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data models.ServerData
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &data))
	assert.Equal(t, int64(1), data.ServerRev)
	require.Len(t, data.File.Words, 1)
	assert.Equal(t, "apple", data.File.Words[0].Headword)
	assert.Equal(t, "c1", data.UpdatedByClientID)
}

func TestHandlerForceQueryAndBase64Body(t *testing.T) {
	h := newHandler(t)
	ctx := context.Background()
	auth := map[string]string{"Authorization": "Bearer tok"}

	resp, err := h.Handle(ctx, awsevents.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPut,
		Path:       "/vocab",
		Headers:    auth,
		Body:       putBody(t, 0),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// stale rev is accepted only with force=true
	stale := base64.StdEncoding.EncodeToString([]byte(putBody(t, 0)))
	resp, err = h.Handle(ctx, awsevents.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPut,
		Path:            "/vocab",
		Headers:         auth,
		Body:            stale,
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = h.Handle(ctx, awsevents.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodPut,
		Path:                  "/vocab",
		Headers:               auth,
		QueryStringParameters: map[string]string{"force": "true"},
		Body:                  stale,
		IsBase64Encoded:       true,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	var synced models.SyncResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &synced))
	assert.Equal(t, int64(2), synced.ServerRev)
}

func TestHandlerMalformedBody(t *testing.T) {
	h := newHandler(t)

	resp, err := h.Handle(context.Background(), awsevents.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPut,
		Path:            "/vocab",
		Body:            "%%%not-base64",
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Body, models.ErrCodeBadRequest)
}
