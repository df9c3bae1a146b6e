package router_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/boundary/abstraction"
	"attune/internal/boundary/anonymize"
	"attune/internal/boundary/isolation"
	"attune/internal/boundary/match"
	"attune/internal/boundary/terms"
	"attune/internal/couples"
	"attune/internal/guides"
	"attune/internal/jwttoken"
	"attune/internal/merge"
	"attune/internal/platform/logger"
	"attune/internal/research"
	"attune/internal/transport/http/router"
	"attune/pkg/platform/audit/publishers/compliance"
	"attune/pkg/platform/audit/store/memory"
	"attune/pkg/testutil"
)

type fixedSearch struct{}

func (fixedSearch) Search(context.Context, string) ([]research.Finding, error) {
	return []research.Finding{{Title: "Attachment repair in couples work", Source: "journal"}}, nil
}

// newTestStack wires the full service graph over in-memory stores.
func newTestStack(t *testing.T) (http.Handler, *jwttoken.JWTService) {
	t.Helper()

	log := logger.New()
	tables := terms.Default()
	auditStore := memory.NewInMemoryStore()
	auditor := compliance.New(auditStore)

	linkService := couples.NewService(couples.NewInMemoryStore(), auditor)
	mergeService := merge.NewService(
		linkService,
		isolation.New(tables),
		match.New(tables),
		tables,
		auditor,
	)
	guideService := guides.NewService(abstraction.New(tables))
	researchService := research.NewService(
		anonymize.NewBuilder(anonymize.New(tables), log),
		fixedSearch{},
	)

	jwtService := jwttoken.NewJWTService("test-signing-key", "attune", "attune-api")

	handler := router.New(router.Deps{
		Logger:   log,
		JWT:      router.NewJWTValidator(jwtService),
		Merge:    merge.NewHandler(mergeService, log),
		Couples:  couples.NewHandler(linkService, log),
		Guides:   guides.NewHandler(guideService, log),
		Research: research.NewHandler(researchService, log),
	})
	return handler, jwtService
}

func bearer(t *testing.T, jwtService *jwttoken.JWTService, therapistID uuid.UUID) string {
	t.Helper()
	token, err := jwtService.GenerateAccessToken(therapistID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRouterPublicEndpoints(t *testing.T) {
	handler, _ := newTestStack(t)

	t.Run("healthz", func(t *testing.T) {
		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("metrics", func(t *testing.T) {
		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/metrics"))
		testutil.AssertStatusOK(t, rr)
	})
}

func TestRouterRequiresAuth(t *testing.T) {
	handler, jwtService := newTestStack(t)

	t.Run("missing token", func(t *testing.T) {
		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/v1/couples"))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/couples")
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := testutil.DoRequest(handler, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("valid token", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/couples")
		req.Header.Set("Authorization", bearer(t, jwtService, uuid.New()))
		rr := testutil.DoRequest(handler, req)
		testutil.AssertStatusOK(t, rr)
	})
}

// TestMergeEndToEnd walks the whole therapist flow over HTTP: link the
// couple, activate with the invite code, then merge two analyses.
func TestMergeEndToEnd(t *testing.T) {
	handler, jwtService := newTestStack(t)

	therapistID := uuid.New()
	auth := bearer(t, jwtService, therapistID)
	partnerA := uuid.NewString()
	partnerB := uuid.NewString()

	send := func(req *http.Request) *struct {
		status int
		body   map[string]any
	} {
		req.Header.Set("Authorization", auth)
		rr := testutil.DoRequest(handler, req)
		body := testutil.UnmarshalResponse[map[string]any](t, rr)
		return &struct {
			status int
			body   map[string]any
		}{rr.Code, *body}
	}

	var coupleID, inviteCode string
	testutil.Given(t, "a therapist links two clients", func(t *testing.T) {
		created := send(testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples", map[string]string{
			"partner_a": partnerA,
			"partner_b": partnerB,
		}))
		require.Equal(t, http.StatusCreated, created.status)
		inviteCode, _ = created.body["invite_code"].(string)
		require.NotEmpty(t, inviteCode)
		link := created.body["link"].(map[string]any)
		coupleID = link["couple_id"].(string)
	})

	analysisFor := func(attachment, pattern string) map[string]any {
		return map[string]any{
			"frameworks": []map[string]any{
				{"name": attachment, "confidence": 0.8, "category": "attachment"},
			},
			"patterns": []map[string]any{
				{"type": pattern, "indicators": []string{"observed in session"}},
			},
			"themes": []string{"trust"},
		}
	}
	mergeBody := map[string]any{
		"session_id": uuid.NewString(),
		"partner_a":  map[string]any{"client_id": partnerA, "analysis": analysisFor("anxious", "pursuer")},
		"partner_b":  map[string]any{"client_id": partnerB, "analysis": analysisFor("avoidant", "distancer")},
	}
	testutil.When(t, "the link is still pending", func(t *testing.T) {
		denied := send(testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge", mergeBody))
		assert.Equal(t, http.StatusConflict, denied.status)
	})

	testutil.When(t, "the second partner confirms with the invite code", func(t *testing.T) {
		activated := send(testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/activate",
			map[string]string{"invite_code": inviteCode}))
		require.Equal(t, http.StatusOK, activated.status)
	})

	testutil.Then(t, "the merge produces a shareable outcome", func(t *testing.T) {
		merged := send(testutil.NewJSONRequest(t, http.MethodPost, "/v1/couples/"+coupleID+"/merge", mergeBody))
		require.Equal(t, http.StatusOK, merged.status)
		assert.Equal(t, coupleID, merged.body["couple_id"])
		assert.NotEmpty(t, merged.body["topics"])
		assert.NotEmpty(t, merged.body["focus_areas"])
		assert.NotEmpty(t, merged.body["exercises"])
	})

	testutil.Then(t, "the attempt log holds the denial and the success", func(t *testing.T) {
		recent := send(testutil.NewRequest(t, http.MethodGet, "/v1/merges/recent"))
		require.Equal(t, http.StatusOK, recent.status)
		attempts := recent.body["attempts"].([]any)
		assert.Len(t, attempts, 2)
	})
}
