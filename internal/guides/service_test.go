package guides_test

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

	"attune/internal/analysis"
	"attune/internal/boundary/abstraction"
	"attune/internal/boundary/terms"
	"attune/internal/guides"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
	audit "attune/pkg/platform/audit"
	"attune/pkg/testutil"
)

func newService(sink chan audit.Event) *guides.Service {
	return guides.NewService(
		abstraction.New(terms.Default()),
		guides.WithAuditSink(sink),
		guides.WithClock(func() time.Time {
			return time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)
		}),
	)
}

func request(a analysis.ClinicalAnalysis) guides.Request {
	return guides.Request{
		TherapistID: id.TherapistID(uuid.New()),
		ClientID:    id.ClientID(uuid.New()),
		RequestID:   "req-guide-1",
		Analysis:    a,
	}
}

func TestGenerateGuide(t *testing.T) {
	t.Run("safe analysis yields a guide and an ops event", func(t *testing.T) {
		sink := make(chan audit.Event, 2)
		service := newService(sink)

		guide, err := service.Generate(context.Background(), request(analysis.ClinicalAnalysis{
			Themes:       []string{"trust after a difficult year", "communication during stress"},
			Explorations: []string{"what helps you feel heard"},
		}))
		require.NoError(t, err)
		assert.Len(t, guide.Themes, 2)
		assert.NotEmpty(t, guide.Focus)

		event := <-sink
		assert.Equal(t, string(audit.EventGuideGenerated), event.Action)
		assert.Equal(t, audit.CategoryOperations, event.Category)
		assert.False(t, event.Timestamp.IsZero())
	})

	t.Run("unsafe analysis is withheld with a security event", func(t *testing.T) {
		sink := make(chan audit.Event, 2)
		service := newService(sink)

		// Not on the remove-entirely list, so only the residual scan can
		// catch it.
		guide, err := service.Generate(context.Background(), request(analysis.ClinicalAnalysis{
			Themes: []string{"possible borderline traits in conflict"},
		}))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsafeContent))
		assert.Zero(t, guide, "no partial guide on a withheld outcome")
		assert.NotContains(t, err.Error(), "borderline")

		event := <-sink
		assert.Equal(t, string(audit.EventGuideWithheld), event.Action)
		assert.Equal(t, audit.CategorySecurity, event.Category)
	})
}

type stubGuideService struct {
	generateFn func(ctx context.Context, req guides.Request) (abstraction.Guide, error)
}

func (s *stubGuideService) Generate(ctx context.Context, req guides.Request) (abstraction.Guide, error) {
	return s.generateFn(ctx, req)
}

func TestGuideHandler(t *testing.T) {
	therapistID := uuid.NewString()
	clientID := uuid.NewString()

	newRouter := func(service guides.GuideService) http.Handler {
		r := chi.NewRouter()
		guides.NewHandler(service, slog.Default()).Register(r)
		return r
	}

	t.Run("returns the guide", func(t *testing.T) {
		service := &stubGuideService{
			generateFn: func(_ context.Context, req guides.Request) (abstraction.Guide, error) {
				return abstraction.Guide{
					Themes: []string{"Trust after a difficult year"},
					Focus:  "In this session, you might explore trust after a difficult year.",
				}, nil
			},
		}
		router := newRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/clients/"+clientID+"/guide",
			map[string]any{"themes": []string{"trust after a difficult year"}})
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONHasKey(t, rr, "focus")
	})

	t.Run("withheld guide maps to 422", func(t *testing.T) {
		service := &stubGuideService{
			generateFn: func(context.Context, guides.Request) (abstraction.Guide, error) {
				return abstraction.Guide{}, dErrors.New(dErrors.CodeUnsafeContent, "client guide failed residual clinical check")
			},
		}
		router := newRouter(service)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/clients/"+clientID+"/guide",
			map[string]any{"themes": []string{"anything"}})
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, string(dErrors.CodeUnsafeContent))
	})

	t.Run("invalid client id", func(t *testing.T) {
		router := newRouter(&stubGuideService{})

		req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/clients/xyz/guide",
			map[string]any{"themes": []string{"trust"}})
		rr := testutil.DoRequest(router, testutil.WithTherapist(req, therapistID))

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}
