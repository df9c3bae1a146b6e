package merge_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/boundary/match"
	"attune/internal/merge"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
	"attune/pkg/testutil"
)

type stubMergeService struct {
	mergeFn  func(ctx context.Context, req merge.Request) (merge.Outcome, error)
	attempts []merge.AttemptRecord
	lastReq  merge.Request
}

func (s *stubMergeService) Merge(ctx context.Context, req merge.Request) (merge.Outcome, error) {
	s.lastReq = req
	return s.mergeFn(ctx, req)
}

func (s *stubMergeService) ListRecentAttempts(limit int) []merge.AttemptRecord {
	if limit < len(s.attempts) {
		return s.attempts[:limit]
	}
	return s.attempts
}

func newMergeRouter(service merge.MergeService) http.Handler {
	r := chi.NewRouter()
	merge.NewHandler(service, slog.Default()).Register(r)
	return r
}

func mergeBody(sessionID string, clientA, clientB string) map[string]any {
	return map[string]any{
		"session_id": sessionID,
		"partner_a": map[string]any{
			"client_id": clientA,
			"analysis": map[string]any{
				"frameworks": []map[string]any{
					{"name": "anxious", "confidence": 0.8, "category": "attachment"},
				},
				"themes": []string{"trust"},
			},
		},
		"partner_b": map[string]any{
			"client_id": clientB,
			"analysis": map[string]any{
				"frameworks": []map[string]any{
					{"name": "avoidant", "confidence": 0.7, "category": "attachment"},
				},
				"themes": []string{"trust"},
			},
		},
	}
}

func TestMergeHandler(t *testing.T) {
	therapistID := uuid.NewString()
	coupleID := uuid.NewString()
	sessionID := uuid.NewString()
	clientA := uuid.NewString()
	clientB := uuid.NewString()

	generated := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	okOutcome := func(req merge.Request) merge.Outcome {
		return merge.Outcome{
			CoupleID:    req.CoupleID,
			SessionID:   req.SessionID,
			GeneratedAt: generated,
			Topics: []match.Topic{
				{Type: match.TypeShared, Category: "themes", Labels: []string{"trust"}, Key: "trust"},
			},
			FocusAreas: []string{"trust"},
			Summary:    "1 shared, 0 complementary, 0 conflict topics across 1 focus areas",
			Exercises:  []string{"Share one worry you have not said out loud yet"},
		}
	}

	t.Run("successful merge", func(t *testing.T) {
		service := &stubMergeService{
			mergeFn: func(_ context.Context, req merge.Request) (merge.Outcome, error) {
				return okOutcome(req), nil
			},
		}
		router := newMergeRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge",
			mergeBody(sessionID, clientA, clientB))
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "couple_id", coupleID)
		testutil.AssertJSONContains(t, rr, "session_id", sessionID)
		testutil.AssertJSONHasKey(t, rr, "topics")
		testutil.AssertJSONHasKey(t, rr, "exercises")

		assert.Equal(t, therapistID, service.lastReq.TherapistID.String())
		assert.Equal(t, clientA, service.lastReq.PartnerA.ClientID.String())
		assert.Equal(t, "anxious", service.lastReq.PartnerA.Analysis.Frameworks[0].Name)
	})

	t.Run("missing auth context", func(t *testing.T) {
		service := &stubMergeService{
			mergeFn: func(_ context.Context, req merge.Request) (merge.Outcome, error) {
				return okOutcome(req), nil
			},
		}
		router := newMergeRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge",
			mergeBody(sessionID, clientA, clientB))
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
	})

	t.Run("invalid couple id", func(t *testing.T) {
		router := newMergeRouter(&stubMergeService{})

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/not-a-uuid/merge",
			mergeBody(sessionID, clientA, clientB))
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	t.Run("malformed body", func(t *testing.T) {
		router := newMergeRouter(&stubMergeService{})

		req := testutil.NewRequestWithBody(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge", "{not json")
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	t.Run("invalid session id", func(t *testing.T) {
		router := newMergeRouter(&stubMergeService{})

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge",
			mergeBody("", clientA, clientB))
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	t.Run("denied merge surfaces code only", func(t *testing.T) {
		service := &stubMergeService{
			mergeFn: func(context.Context, merge.Request) (merge.Outcome, error) {
				return merge.Outcome{}, dErrors.New(dErrors.CodeForbidden, "couple is not managed by this therapist")
			},
		}
		router := newMergeRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge",
			mergeBody(sessionID, clientA, clientB))
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeForbidden))
		assert.NotContains(t, rr.Body.String(), "therapist", "error messages never cross the wire")
	})

	t.Run("unsafe content maps to 422", func(t *testing.T) {
		service := &stubMergeService{
			mergeFn: func(context.Context, merge.Request) (merge.Outcome, error) {
				return merge.Outcome{}, dErrors.New(dErrors.CodeUnsafeContent, "isolated profile failed residual check")
			},
		}
		router := newMergeRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge",
			mergeBody(sessionID, clientA, clientB))
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, string(dErrors.CodeUnsafeContent))
	})
}

func TestRecentAttemptsHandler(t *testing.T) {
	records := []merge.AttemptRecord{
		{
			Timestamp:        time.Date(2026, 3, 14, 10, 2, 0, 0, time.UTC),
			CoupleID:         id.NewCoupleID(),
			SessionID:        id.SessionID(uuid.New()),
			PartnerA:         id.ClientID(uuid.New()),
			PartnerB:         id.ClientID(uuid.New()),
			Outcome:          merge.OutcomeMerged,
			IsolationInvoked: true,
			LabelsA:          4,
			LabelsB:          3,
			TopicSummary:     "1 shared, 0 complementary, 0 conflict topics across 1 focus areas",
		},
		{
			Timestamp: time.Date(2026, 3, 14, 10, 1, 0, 0, time.UTC),
			CoupleID:  id.NewCoupleID(),
			SessionID: id.SessionID(uuid.New()),
			Outcome:   merge.OutcomeDenied,
			Reason:    string(dErrors.CodeForbidden),
		},
	}
	router := newMergeRouter(&stubMergeService{attempts: records})

	t.Run("returns attempts", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/merges/recent"))

		testutil.AssertStatusOK(t, rr)
		type response struct {
			Attempts []struct {
				PartnerA         string `json:"partner_a"`
				PartnerB         string `json:"partner_b"`
				Outcome          string `json:"outcome"`
				Reason           string `json:"reason"`
				IsolationInvoked bool   `json:"isolation_invoked"`
				LabelsA          int    `json:"labels_a"`
				LabelsB          int    `json:"labels_b"`
			} `json:"attempts"`
		}
		resp := testutil.UnmarshalResponse[response](t, rr)
		require.Len(t, resp.Attempts, 2)
		assert.Equal(t, merge.OutcomeMerged, resp.Attempts[0].Outcome)
		assert.True(t, resp.Attempts[0].IsolationInvoked)
		assert.Equal(t, records[0].PartnerA.String(), resp.Attempts[0].PartnerA)
		assert.Equal(t, records[0].PartnerB.String(), resp.Attempts[0].PartnerB)
		assert.Equal(t, 4, resp.Attempts[0].LabelsA)
		assert.Equal(t, 3, resp.Attempts[0].LabelsB)
		assert.Equal(t, string(dErrors.CodeForbidden), resp.Attempts[1].Reason)
	})

	t.Run("respects limit", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/merges/recent?limit=1"))

		testutil.AssertStatusOK(t, rr)
		type response struct {
			Attempts []map[string]any `json:"attempts"`
		}
		resp := testutil.UnmarshalResponse[response](t, rr)
		assert.Len(t, resp.Attempts, 1)
	})

	t.Run("rejects out-of-range limit", func(t *testing.T) {
		for _, raw := range []string{"0", "-3", "500", "abc"} {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/merges/recent?limit="+raw))
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
		}
	})
}
