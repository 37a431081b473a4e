package handoff

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"docforge/internal/codegen"
	"docforge/internal/domain/pipeline"
	"docforge/internal/llm"
	"docforge/internal/prompts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLLM struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (c *countingLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	c.calls.Add(1)
	if c.fail[string(req.Role)+":"+req.Unit] {
		return "", assert.AnError
	}
	return "```java\nclass " + strings.TrimSuffix(req.Unit, ".java") + "Gen {}\n```", nil
}

func newTestServer(t *testing.T, gen llm.Generator) *Server {
	t.Helper()
	lib, err := prompts.New("Java")
	require.NoError(t, err)
	return NewServer(codegen.NewPipeline(gen, lib, codegen.Config{Concurrency: 2}, nil), nil)
}

func encode(t *testing.T, req pipeline.GenerationRequest) []byte {
	t.Helper()
	data, err := EncodeRequest(req)
	require.NoError(t, err)
	return data
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func okRecords(names ...string) pipeline.RecordSet {
	rs := make(pipeline.RecordSet, len(names))
	for i, n := range names {
		rs[i] = pipeline.DocumentationRecord{UnitName: n, Body: "docs for " + n, Status: pipeline.StatusOK}
	}
	return rs
}

func TestHandleAllSucceededWithTests(t *testing.T) {
	gen := &countingLLM{}
	status, body := newTestServer(t, gen).Handle(context.Background(), encode(t, pipeline.GenerationRequest{
		Credential:    "sk-test",
		Records:       okRecords("A.java", "B.java", "C.java"),
		GenerateTests: true,
	}))
	require.Equal(t, http.StatusOK, status, string(body))

	result, err := DecodeResponse(body)
	require.NoError(t, err)
	assert.Len(t, result.Artifacts, 6)
	assert.False(t, result.Partial)
	assert.Equal(t, 3, result.Count(pipeline.KindTest))
	assert.Equal(t, int32(6), gen.calls.Load())
}

func TestHandlePartialWhenDocumentationFailed(t *testing.T) {
	gen := &countingLLM{}
	records := pipeline.RecordSet{
		{UnitName: "A.java", Body: "docs", Status: pipeline.StatusOK},
		{UnitName: "B.java", Status: pipeline.StatusFailed, Error: "documentation timed out"},
	}
	status, body := newTestServer(t, gen).Handle(context.Background(), encode(t, pipeline.GenerationRequest{
		Credential: "sk-test", Records: records, GenerateTests: true,
	}))
	require.Equal(t, http.StatusOK, status)

	result, err := DecodeResponse(body)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	require.Len(t, result.Artifacts, 3)
	assert.Equal(t, "B.java", result.Artifacts[2].UnitName)
	assert.Equal(t, pipeline.StatusFailed, result.Artifacts[2].Status)
	assert.Equal(t, 1, result.Count(pipeline.KindTest))
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestHandleEmptyCredentialMakesNoCalls(t *testing.T) {
	gen := &countingLLM{}
	status, body := newTestServer(t, gen).Handle(context.Background(), encode(t, pipeline.GenerationRequest{
		Records: okRecords("A.java"), GenerateTests: true,
	}))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, KindInvalidCredential, decodeError(t, body).Kind)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestHandleEmptyRecordSet(t *testing.T) {
	gen := &countingLLM{}
	status, body := newTestServer(t, gen).Handle(context.Background(), []byte(`{"credential":"k","json_data":{}}`))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, KindEmptyRecordSet, decodeError(t, body).Kind)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestHandleMalformedPayload(t *testing.T) {
	gen := &countingLLM{}
	srv := newTestServer(t, gen)

	status, body := srv.Handle(context.Background(), []byte(`{"credential":"k","json_data":`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, KindMalformedPayload, decodeError(t, body).Kind)

	status, body = srv.Handle(context.Background(), []byte(`{"credential":"k","json_data":{"A.java":{"body":"a","status":"weird"}}}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, KindMalformedPayload, decodeError(t, body).Kind)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestHandleCredentialCheckedBeforeEmptySet(t *testing.T) {
	status, body := newTestServer(t, &countingLLM{}).Handle(context.Background(), []byte(`{"json_data":{}}`))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, KindInvalidCredential, decodeError(t, body).Kind)
}

func TestHandleInternalFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status, body := newTestServer(t, &countingLLM{}).Handle(ctx, encode(t, pipeline.GenerationRequest{
		Credential: "k", Records: okRecords("A.java"),
	}))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, KindInternal, decodeError(t, body).Kind)
}
