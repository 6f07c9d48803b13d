package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) *ProblemDetail {
	t.Helper()
	require.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return &p
}

func TestWriteError_ProblemDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, "Conflict", "batch already closed")

	assert.Equal(t, http.StatusConflict, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "https://sigillum.dev/errors/409", p.Type)
	assert.Equal(t, "Conflict", p.Title)
	assert.Equal(t, http.StatusConflict, p.Status)
	assert.Equal(t, "batch already closed", p.Detail)
}

func TestWriteUnauthorized_DefaultDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUnauthorized(w, "")
	p := decodeProblem(t, w)
	assert.Equal(t, "Authentication required", p.Detail)
}

func TestWriteTooManyRequests_SetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	WriteTooManyRequests(w, 5)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestWriteInternal_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternal(w, assert.AnError)
	p := decodeProblem(t, w)
	assert.Equal(t, http.StatusInternalServerError, p.Status)
	assert.NotContains(t, p.Detail, assert.AnError.Error())
}
