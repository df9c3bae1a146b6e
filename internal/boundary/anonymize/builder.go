package anonymize

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// queryTemplates render external research queries from clinical labels. The
// rendered string is always anonymized before use; labels come from
// allow-listed taxonomies but the templates make no assumption about that.
var queryTemplates = []string{
	"evidence-based interventions for %s in therapy",
	"therapeutic approaches to %s in couples counselling",
	"%s treatment research findings for clinicians",
}

// batchConcurrency bounds parallel anonymization during batch builds.
const batchConcurrency = 4

// Builder renders and clears research queries for the external search API.
type Builder struct {
	anonymizer *Anonymizer
	logger     *slog.Logger
}

// NewBuilder creates a query builder over the given anonymizer.
func NewBuilder(anonymizer *Anonymizer, logger *slog.Logger) *Builder {
	return &Builder{anonymizer: anonymizer, logger: logger}
}

// Build renders the primary template for one label and anonymizes the
// result. Returns a content-safety error when the rendered query is unsafe.
func (b *Builder) Build(label string) (string, error) {
	return b.anonymizer.MustAnonymize(fmt.Sprintf(queryTemplates[0], label))
}

// BuildBatch renders one query per label and anonymizes each in parallel.
// A rejected query is skipped, not fatal to the batch; output order follows
// input order of the surviving labels.
func (b *Builder) BuildBatch(ctx context.Context, labels []string) ([]string, error) {
	results := make([]string, len(labels))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, label := range labels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			query, err := b.Build(label)
			if err != nil {
				// Per-item recovery: the slot stays empty and is compacted
				// out below.
				if b.logger != nil {
					b.logger.Debug("skipping rejected research query", "error", err)
				}
				return nil
			}
			results[i] = query
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var queries []string
	for _, q := range results {
		if q != "" {
			queries = append(queries, q)
		}
	}
	return queries, nil
}

// Variants renders every template for one label and returns the queries
// that pass anonymization. Used when the search layer wants broader recall.
func (b *Builder) Variants(label string) []string {
	var out []string
	for _, tmpl := range queryTemplates {
		query, err := b.anonymizer.MustAnonymize(fmt.Sprintf(tmpl, label))
		if err != nil {
			continue
		}
		out = append(out, query)
	}
	return out
}
