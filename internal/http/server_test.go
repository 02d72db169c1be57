package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/embeddings"
	"github.com/fyrsmithlabs/ledgerd/internal/extraction"
	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
	"github.com/fyrsmithlabs/ledgerd/internal/parsecache"
	"github.com/fyrsmithlabs/ledgerd/internal/service"
	"github.com/fyrsmithlabs/ledgerd/internal/vendor"
	"github.com/fyrsmithlabs/ledgerd/internal/vectorstore"
)

const awsDocument = `Amazon Web Services, Inc.
Invoice Number: 1462308129
Invoice Date: August 1, 2025
TOTAL AMOUNT DUE: $120.00
`

const githubDocument = `GitHub
Invoice Number: GH-99120
Invoice Date: August 2, 2025
Amount Due: $21.00
`

type noGenerative struct{}

func (noGenerative) Extract(ctx context.Context, text string) (*extraction.FieldSet, error) {
	return nil, extraction.ErrUnavailable
}

func (noGenerative) Available() bool { return false }

type constEmbedder struct{}

func (constEmbedder) EmbedDocument(ctx context.Context, text string) (*embeddings.Result, error) {
	return &embeddings.Result{Vector: hashVector(text), ProviderID: "test/stub"}, nil
}

func (constEmbedder) EmbedQuery(ctx context.Context, text string) (*embeddings.Result, error) {
	return &embeddings.Result{Vector: hashVector(text), ProviderID: "test/stub"}, nil
}

func hashVector(text string) []float32 {
	vec := []float32{1, 0.5, 0.25}
	for i, r := range text {
		vec[i%3] += float32(r%13) / 100
	}
	return vec
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	vectors, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Metric:    vectorstore.MetricCosine,
		Dimension: 3,
	}, nil)
	require.NoError(t, err)

	vendors := vendor.NewMemoryStore()
	svc, err := service.New(service.Deps{
		Invoices:   service.NewMemoryInvoiceStore(),
		Jobs:       service.NewMemoryJobStore(),
		Vendors:    vendors,
		Normalizer: vendor.NewNormalizer(vendors, 0, nil),
		Cache:      parsecache.NewMemoryCache(),
		Extractor:  extraction.NewPipeline(extraction.Config{}, noGenerative{}, nil),
		Embedder:   constEmbedder{},
		Vectors:    vectors,
	})
	require.NoError(t, err)

	srv, err := NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func submitBody(document string) string {
	b, _ := json.Marshal(SubmitRequest{Document: document})
	return string(b)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestSubmitAndFetchInvoice(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody(awsDocument))
	require.Equal(t, http.StatusCreated, rec.Code)

	var inv invoice.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.Equal(t, "Amazon Web Services", inv.VendorNormalized)
	assert.Equal(t, 120.00, inv.TotalAmount)

	rec = doJSON(srv, http.MethodGet, "/api/v1/invoices/"+inv.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(srv, http.MethodGet, "/api/v1/invoices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []invoice.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCorrectInvoice(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody(awsDocument))
	require.Equal(t, http.StatusCreated, rec.Code)

	var inv invoice.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))

	rec = doJSON(srv, http.MethodPatch, "/api/v1/invoices/"+inv.ID.String(),
		`{"category": "Cloud Services"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated invoice.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Cloud Services", updated.Category)

	rec = doJSON(srv, http.MethodPatch, "/api/v1/invoices/"+uuid.NewString(),
		`{"category": "Cloud Services"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(srv, http.MethodPatch, "/api/v1/invoices/"+inv.ID.String(),
		`{"vendor_name": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "blanking a mandatory field is not a valid correction")
}

func TestSubmit_MissingDocument(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/invoices", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_RejectedDocument(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody("nothing invoice-like here"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusCreated,
		doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody(awsDocument)).Code)
	require.Equal(t, http.StatusCreated,
		doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody(githubDocument)).Code)

	rec := doJSON(srv, http.MethodGet, "/api/v1/search?q=cloud+hosting&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var hits []service.SearchHit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	assert.Len(t, hits, 2)

	rec = doJSON(srv, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindSimilar(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody(awsDocument))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, http.StatusCreated,
		doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody(githubDocument)).Code)

	var inv invoice.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))

	rec = doJSON(srv, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%s/similar", inv.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var hits []service.SearchHit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.NotEqual(t, inv.ID, hits[0].Invoice.ID)
}

func TestFindSimilar_Errors(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/api/v1/invoices/not-a-uuid/similar", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(srv, http.MethodGet, fmt.Sprintf("/api/v1/invoices/%s/similar", uuid.New()), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVendors(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusCreated,
		doJSON(srv, http.MethodPost, "/api/v1/invoices", submitBody(awsDocument)).Code)

	rec := doJSON(srv, http.MethodGet, "/api/v1/vendors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var vendors []invoice.Vendor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vendors))
	require.Len(t, vendors, 1)
	assert.Equal(t, "Amazon Web Services", vendors[0].NormalizedName)
}

func TestAsyncSubmission(t *testing.T) {
	srv := newTestServer(t)

	b, _ := json.Marshal(SubmitRequest{Document: awsDocument, Async: true})
	rec := doJSON(srv, http.MethodPost, "/api/v1/invoices", string(b))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job invoice.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))

	require.Eventually(t, func() bool {
		rec := doJSON(srv, http.MethodGet, "/api/v1/jobs/"+job.ID.String(), "")
		if rec.Code != http.StatusOK {
			return false
		}
		var j invoice.Job
		if err := json.Unmarshal(rec.Body.Bytes(), &j); err != nil {
			return false
		}
		return j.Status == invoice.JobComplete
	}, 5*time.Second, 10*time.Millisecond)
}

func TestJobStatus_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/api/v1/jobs/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
