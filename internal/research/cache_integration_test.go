//go:build integration

package research_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/boundary/anonymize"
	"attune/internal/boundary/terms"
	"attune/internal/research"
	id "attune/pkg/domain"
	"attune/pkg/testutil/containers"
)

func TestResearchCache(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	search := &stubSearch{
		findings: []research.Finding{
			{Title: "Repair attempts and relationship stability", Source: "journal"},
		},
	}
	builder := anonymize.NewBuilder(anonymize.New(terms.Default()), nil)
	service := research.NewService(builder, search,
		research.WithCache(rc.Client, time.Hour),
	)

	req := research.LookupRequest{
		TherapistID: id.TherapistID(uuid.New()),
		RequestID:   "req-cache-1",
		Labels:      []string{"repair_attempt"},
	}

	t.Run("first lookup misses and populates the cache", func(t *testing.T) {
		results, err := service.Lookup(ctx, req)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].FromCache)
		assert.Len(t, search.calls, 1)
	})

	t.Run("second lookup hits the cache", func(t *testing.T) {
		results, err := service.Lookup(ctx, req)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].FromCache)
		assert.Equal(t, search.findings, results[0].Findings)
		assert.Len(t, search.calls, 1, "no second external call")
	})

	t.Run("cached entries carry the retention TTL", func(t *testing.T) {
		keys, err := rc.Client.Keys(ctx, "research:v1:*").Result()
		require.NoError(t, err)
		require.Len(t, keys, 1)

		ttl, err := rc.Client.TTL(ctx, keys[0]).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Minute)
		assert.LessOrEqual(t, ttl, time.Hour)
	})

	t.Run("expired entries behave as misses", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		results, err := service.Lookup(ctx, req)
		require.NoError(t, err)
		assert.False(t, results[0].FromCache)
		assert.Len(t, search.calls, 2)
	})
}
