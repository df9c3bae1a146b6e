package research_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/research"
	dErrors "attune/pkg/domain-errors"
	"attune/pkg/testutil"
)

type stubLookupService struct {
	lookupFn func(ctx context.Context, req research.LookupRequest) ([]research.TopicResult, error)
	lastReq  research.LookupRequest
}

func (s *stubLookupService) Lookup(ctx context.Context, req research.LookupRequest) ([]research.TopicResult, error) {
	s.lastReq = req
	return s.lookupFn(ctx, req)
}

func newResearchRouter(service research.LookupService) http.Handler {
	r := chi.NewRouter()
	research.NewHandler(service, slog.Default()).Register(r)
	return r
}

func TestResearchHandler(t *testing.T) {
	therapistID := uuid.NewString()

	t.Run("successful lookup", func(t *testing.T) {
		service := &stubLookupService{
			lookupFn: func(_ context.Context, req research.LookupRequest) ([]research.TopicResult, error) {
				return []research.TopicResult{
					{
						Label:    req.Labels[0],
						Query:    "evidence-based interventions for trust in therapy",
						Findings: []research.Finding{{Title: "Rebuilding trust after rupture"}},
					},
				}, nil
			},
		}
		router := newResearchRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/research/lookup",
			map[string]any{"labels": []string{"trust"}})
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusOK(t, rr)
		type response struct {
			Topics []research.TopicResult `json:"topics"`
		}
		resp := testutil.UnmarshalResponse[response](t, rr)
		require.Len(t, resp.Topics, 1)
		assert.Equal(t, "trust", resp.Topics[0].Label)
		assert.Equal(t, therapistID, service.lastReq.TherapistID.String())
	})

	t.Run("missing auth context", func(t *testing.T) {
		router := newResearchRouter(&stubLookupService{})

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/research/lookup",
			map[string]any{"labels": []string{"trust"}})
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
	})

	t.Run("malformed body", func(t *testing.T) {
		router := newResearchRouter(&stubLookupService{})

		req := testutil.NewRequestWithBody(t, http.MethodPost, "/v1/research/lookup", "{nope")
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	t.Run("service validation error", func(t *testing.T) {
		service := &stubLookupService{
			lookupFn: func(context.Context, research.LookupRequest) ([]research.TopicResult, error) {
				return nil, dErrors.New(dErrors.CodeValidation, "research lookup requires at least one label")
			},
		}
		router := newResearchRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/research/lookup",
			map[string]any{"labels": []string{}})
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}
