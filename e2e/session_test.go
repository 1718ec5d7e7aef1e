package e2e

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bofstudio/pipeline-console/internal/model"
)

func openReviewBatch(t *testing.T, ta *testApp, ids ...string) {
	t.Helper()
	var products []model.Product
	for _, id := range ids {
		products = append(products, pendingProduct(id))
	}
	ta.backend.addBatch("b1", products...)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/batches/b1/open", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSession_SubmitRejectsUndecided(t *testing.T) {
	ta := setupApp(t)
	openReviewBatch(t, ta, "p1", "p2", "p3")

	resp, err := doRequest(ta.app, http.MethodPost, "/api/session/decisions", `{"batchId":"b1","productId":"p1","approved":true}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	assert.Len(t, parseJSON(t, resp)["decisions"], 1)

	resp, err = doRequest(ta.app, http.MethodPost, "/api/session/submit", `{"batchId":"b1"}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	assert.Equal(t, 1.0, body["resubmitted"])
	assert.Equal(t, "batch-new-1", body["newBatchId"])

	assert.Equal(t, map[string]model.ReviewVerdict{
		"p1": model.VerdictApproved,
		"p2": model.VerdictRejected,
		"p3": model.VerdictRejected,
	}, ta.backend.lastReview())

	reqs := ta.backend.pipelineRequests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Products, 1)
	assert.True(t, reqs[0].Products[0].SkipImageGeneration)
	assert.Equal(t, "https://cdn.example.com/gen/p1.png", reqs[0].Products[0].ImgURL)
	assert.Equal(t, testFalKey, reqs[0].FalAPIKey)

	// A successful submission closes the view.
	resp, err = doRequest(ta.app, http.MethodGet, "/api/session", "", nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusNotFound)
}

func TestSession_ToggleTwiceClearsDecision(t *testing.T) {
	ta := setupApp(t)
	openReviewBatch(t, ta, "p1")

	for i := 0; i < 2; i++ {
		resp, err := doRequest(ta.app, http.MethodPost, "/api/session/decisions", `{"batchId":"b1","productId":"p1","approved":false}`, nil)
		require.NoError(t, err)
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/api/session", "", nil)
	require.NoError(t, err)
	body := parseJSON(t, resp)
	assert.Empty(t, body["decisions"])
	product := body["products"].([]interface{})[0].(map[string]interface{})
	_, decided := product["decision"]
	assert.False(t, decided)
}

func TestSession_ApproveAllThenSubmit(t *testing.T) {
	ta := setupApp(t)
	openReviewBatch(t, ta, "p1", "p2")

	resp, err := doRequest(ta.app, http.MethodPost, "/api/session/approve-all", `{"batchId":"b1"}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	assert.Len(t, parseJSON(t, resp)["decisions"], 2)

	resp, err = doRequest(ta.app, http.MethodPost, "/api/session/submit", `{"batchId":"b1"}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)

	for id, v := range ta.backend.lastReview() {
		assert.Equal(t, model.VerdictApproved, v, id)
	}
	require.Len(t, ta.backend.pipelineRequests(), 1)
	assert.Len(t, ta.backend.pipelineRequests()[0].Products, 2)
}

func TestSession_RegenerateWithoutRejections(t *testing.T) {
	ta := setupApp(t)
	openReviewBatch(t, ta, "p1")

	resp, err := doRequest(ta.app, http.MethodPost, "/api/session/regenerate", `{"batchId":"b1"}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	assert.Equal(t, true, parseJSON(t, resp)["noop"])
	assert.Nil(t, ta.backend.lastReview())
	assert.Empty(t, ta.backend.pipelineRequests())
}

func TestSession_RegenerateRejected(t *testing.T) {
	ta := setupApp(t)
	openReviewBatch(t, ta, "p1", "p2")

	resp, err := doRequest(ta.app, http.MethodPost, "/api/session/decisions", `{"batchId":"b1","productId":"p2","approved":false}`, nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = doRequest(ta.app, http.MethodPost, "/api/session/regenerate", `{"batchId":"b1"}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)

	assert.Equal(t, map[string]model.ReviewVerdict{"p2": model.VerdictRejected}, ta.backend.lastReview())
	reqs := ta.backend.pipelineRequests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].ImageOnly)
	require.Len(t, reqs[0].Products, 1)
	assert.Equal(t, "https://cdn.example.com/src/p2.jpg", reqs[0].Products[0].ImgURL)
}

func TestSession_Errors(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/session/submit", `{"batchId":"b1"}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	openReviewBatch(t, ta, "p1")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"invalid json", "/api/session/decisions", `{`, http.StatusBadRequest},
		{"missing verdict", "/api/session/decisions", `{"batchId":"b1","productId":"p1"}`, http.StatusBadRequest},
		{"unknown product", "/api/session/decisions", `{"batchId":"b1","productId":"zz","approved":true}`, http.StatusBadRequest},
		{"other batch", "/api/session/approve-all", `{"batchId":"b2"}`, http.StatusConflict},
		{"missing batch id", "/api/session/submit", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := doRequest(ta.app, http.MethodPost, tt.path, tt.body, nil)
			require.NoError(t, err)
			assertStatus(t, resp, tt.status)
			resp.Body.Close()
		})
	}
}

func TestSession_MissingCredentialBlocksSubmit(t *testing.T) {
	ta := setupApp(t)
	openReviewBatch(t, ta, "p1")

	resp, err := doRequest(ta.app, http.MethodPut, "/api/settings", `{"falApiKey":""}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp, err = doRequest(ta.app, http.MethodPost, "/api/session/submit", `{"batchId":"b1"}`, nil)
	require.NoError(t, err)
	assertStatus(t, resp, http.StatusBadRequest)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, resp))
	assert.Nil(t, ta.backend.lastReview())
}
