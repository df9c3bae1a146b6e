package match

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"attune/internal/boundary/isolation"
	"attune/internal/boundary/terms"
)

type MatcherSuite struct {
	suite.Suite
	matcher *Matcher
}

func TestMatcherSuite(t *testing.T) {
	suite.Run(t, new(MatcherSuite))
}

func (s *MatcherSuite) SetupTest() {
	s.matcher = New(terms.Default())
}

func anxiousPartner() isolation.Profile {
	return isolation.Profile{
		Attachment:    []string{"anxious"},
		Themes:        []string{"trust", "parenting"},
		Communication: []string{"pursuer", "stonewalling"},
	}
}

func avoidantPartner() isolation.Profile {
	return isolation.Profile{
		Attachment:    []string{"avoidant"},
		Themes:        []string{"trust", "finances"},
		Communication: []string{"distancer", "criticism"},
	}
}

func (s *MatcherSuite) TestSharedThemeCarriesExerciseKey() {
	result := s.matcher.Match(anxiousPartner(), avoidantPartner())

	var shared []Topic
	for _, t := range result.Topics {
		if t.Type == TypeShared {
			shared = append(shared, t)
		}
	}
	s.Require().Len(shared, 1)
	s.Equal("themes", shared[0].Category)
	s.Equal([]string{"trust"}, shared[0].Labels)
	s.Equal("trust", shared[0].Key)
}

func (s *MatcherSuite) TestComplementaryAndConflictPairs() {
	result := s.matcher.Match(anxiousPartner(), avoidantPartner())

	sharedCount, complementary, conflict := result.Counts()
	s.Equal(1, sharedCount)
	s.Equal(2, complementary, "anxious/avoidant and pursuer/distancer")
	s.Equal(1, conflict, "stonewalling/criticism")

	s.Contains(result.Topics, Topic{
		Type:     TypeComplementary,
		Category: "attachment",
		Labels:   []string{"anxious", "avoidant"},
		Key:      "anxious-avoidant",
	})
	s.Contains(result.Topics, Topic{
		Type:     TypeConflict,
		Category: "communication",
		Labels:   []string{"criticism", "stonewalling"},
		Key:      "conflict",
	})
}

func (s *MatcherSuite) TestMatchIsSymmetric() {
	a, b := anxiousPartner(), avoidantPartner()

	forward := s.matcher.Match(a, b)
	reverse := s.matcher.Match(b, a)

	s.Equal(forward, reverse)
}

func (s *MatcherSuite) TestFocusAreaOrdering() {
	result := s.matcher.Match(anxiousPartner(), avoidantPartner())

	// Shared themes lead, then complementary keys, then the remaining union
	// themes, capped at five.
	s.Equal([]string{"trust", "anxious-avoidant", "communication", "finances", "parenting"}, result.FocusAreas)
}

func (s *MatcherSuite) TestKeysOrderPairsBeforeThemes() {
	result := s.matcher.Match(anxiousPartner(), avoidantPartner())

	s.Equal([]string{"anxious-avoidant", "communication", "conflict", "trust"}, result.Keys())
}

func (s *MatcherSuite) TestSummaryIsCountBased() {
	result := s.matcher.Match(anxiousPartner(), avoidantPartner())

	s.Equal("1 shared, 2 complementary, 1 conflict topics across 5 focus areas", result.Summary)
	s.NotContains(result.Summary, "anxious")
	s.NotContains(result.Summary, "trust")
}

func (s *MatcherSuite) TestUnrelatedProfiles() {
	a := isolation.Profile{Themes: []string{"parenting"}, Modalities: []string{"couples"}}
	b := isolation.Profile{Themes: []string{"finances"}, Defenses: []string{"humor"}}

	result := s.matcher.Match(a, b)

	shared, complementary, conflict := result.Counts()
	s.Zero(shared)
	s.Zero(complementary)
	s.Zero(conflict)
	s.Equal([]string{"finances", "parenting"}, result.FocusAreas, "union themes still give the couple somewhere to start")
}
