// scorer/scorer.go - Candidate ranking
package scorer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"kicomport/internal/config"
	"kicomport/internal/model"
	"kicomport/internal/repository"
	"kicomport/pkg/logger"
)

// partNumberPattern matches common manufacturer part numbers such as
// STM32F103C8T6 or NE555P without over-matching plain words.
var partNumberPattern = regexp.MustCompile(`^[a-zA-Z]{1,5}\d{2,}[a-zA-Z0-9-]*$`)

var packageTokens = []string{"qfn", "tqfp", "soic", "bga", "lqfp", "tssop", "sot", "dip"}

// Path segments that raise or lower trust in the source tree.
var highTrustSegments = map[string]struct{}{
	"kicad": {}, "library": {}, "libs": {}, "official": {},
	"vendor": {}, "verified": {}, "prod": {}, "production": {},
}

var lowTrustSegments = map[string]struct{}{
	"temp": {}, "tmp": {}, "old": {}, "backup": {}, "legacy": {},
	"imported": {}, "converted": {}, "test": {},
}

// CandidateScorer ranks scanned candidates. Heuristic, quality, feedback and
// trust signals are always computed; the advisory score is optional and its
// absence never blocks ranking.
type CandidateScorer interface {
	ScoreAll(ctx context.Context, components []*model.Component, candidates []*model.CandidateFile) []string
}

type candidateScorer struct {
	cfg      config.ConfigScoring
	advisory Advisory
	feedback repository.FeedbackRepository
	workers  int
	logger   logger.Logger
}

// NewCandidateScorer creates the scorer. advisory may be nil when the
// advisory backend is disabled.
func NewCandidateScorer(cfg config.ConfigScoring, advisoryCfg config.ConfigAdvisory,
	advisory Advisory, feedback repository.FeedbackRepository, logger logger.Logger) CandidateScorer {
	workers := advisoryCfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &candidateScorer{
		cfg:      cfg,
		advisory: advisory,
		feedback: feedback,
		workers:  workers,
		logger:   logger,
	}
}

// ScoreAll scores every candidate in place and returns warnings gathered
// along the way. Candidates of each component are left sorted best-first by
// the deterministic ordering.
func (s *candidateScorer) ScoreAll(ctx context.Context, components []*model.Component, candidates []*model.CandidateFile) []string {
	var warnings []string

	for _, c := range candidates {
		c.TrustBonus = trustBonus(c.RelPath)
		c.HeuristicScore = s.heuristicScore(c)
		c.QualityScore = qualityScore(c)
		c.FeedbackScore = s.feedbackScore(c)
		c.ConsistencyBonus = 0
	}

	if s.advisory != nil {
		warnings = append(warnings, s.scoreAdvisory(ctx, candidates)...)
	}

	for _, c := range candidates {
		c.CombinedScore = s.combined(c)
	}

	// Consistency is judged against the winning symbol of each component,
	// so symbols are ranked first.
	byComponent := groupByComponent(candidates)
	for _, comp := range components {
		group := byComponent[comp.Key]
		symbol := bestOfKind(group, model.KindSymbol)
		if symbol == nil || symbol.PinCount < 0 {
			continue
		}
		for _, c := range group {
			if c.Kind != model.KindFootprint || c.PadCount < 0 {
				continue
			}
			delta := abs(c.PadCount - symbol.PinCount)
			switch {
			case delta <= 1:
				c.ConsistencyBonus = s.cfg.ConsistencyBonus
			case delta >= 4:
				c.ConsistencyBonus = -s.cfg.ConsistencyPenalty
			}
			c.CombinedScore = s.combined(c)
		}
	}

	SortCandidates(candidates)
	return warnings
}

// heuristicScore estimates relevance from name, description, pin/pad counts
// and source path alone.
func (s *candidateScorer) heuristicScore(c *model.CandidateFile) float64 {
	if c.Kind == model.KindModel {
		return s.modelHeuristic(c)
	}

	score := 0.4

	count := c.PinCount
	if c.Kind == model.KindFootprint {
		count = c.PadCount
	}
	if count > 0 {
		score += math.Min(0.2, float64(count)/200.0)
	}

	lowerName := strings.ToLower(c.Name)
	for _, token := range packageTokens {
		if strings.Contains(lowerName, token) {
			score += 0.1
			break
		}
	}

	if c.Description == "" || c.Description == model.MetadataUnknown {
		score -= 0.1
	} else {
		lowerDescr := strings.ToLower(c.Description)
		for _, token := range packageTokens {
			if strings.Contains(lowerDescr, token) {
				score += 0.05
				break
			}
		}
	}

	if partNumberPattern.MatchString(c.Name) {
		score += 0.1
	}

	score += c.TrustBonus
	return clamp01(score)
}

// modelHeuristic scores 3D models, which carry no pin metadata. STEP is the
// preferred exchange format; WRL is display-only.
func (s *candidateScorer) modelHeuristic(c *model.CandidateFile) float64 {
	score := 0.3
	if c.SizeBytes == 0 {
		score = 0.1
	}
	switch strings.ToLower(extOf(c.RelPath)) {
	case ".step", ".stp":
		score += 0.2
	case ".wrl":
		score += 0.05
	}
	score += c.TrustBonus
	return clamp01(score)
}

// qualityScore rewards file substance and parseable metadata, capped well
// below the heuristic so a well-formed but irrelevant file cannot win on
// quality alone.
func qualityScore(c *model.CandidateFile) float64 {
	score := 0.0
	if c.SizeBytes > 0 {
		score += math.Min(0.05, float64(c.SizeBytes)/1_000_000*0.01)
	}
	if c.Description != "" && c.Description != model.MetadataUnknown {
		score += 0.05
	}
	switch c.Kind {
	case model.KindSymbol:
		if c.PinCount > 0 {
			score += 0.05
		}
	case model.KindFootprint:
		if c.PadCount > 0 {
			score += 0.05
		}
	case model.KindModel:
		if c.SizeBytes > 0 {
			score += 0.05
		}
		switch strings.ToLower(extOf(c.RelPath)) {
		case ".step", ".stp":
			score += 0.05
		}
	}
	score += c.TrustBonus
	if score > 0.3 {
		score = 0.3
	}
	if score < 0 {
		score = 0
	}
	return round3(score)
}

func (s *candidateScorer) feedbackScore(c *model.CandidateFile) float64 {
	if s.feedback == nil {
		return 0
	}
	count, err := s.feedback.AppliedCount(c.ContentHash)
	if err != nil {
		s.logger.Warn("feedback lookup failed for %s: %v", c.RelPath, err)
		return 0
	}
	return math.Min(s.cfg.FeedbackCap, float64(count)*s.cfg.FeedbackStep)
}

// combined folds every signal into the final ranking score, rounded to three
// decimals for stable presentation and comparison.
func (s *candidateScorer) combined(c *model.CandidateFile) float64 {
	advisory := 0.0
	if c.AdvisoryScore != nil {
		advisory = *c.AdvisoryScore
	}
	score := s.cfg.HeuristicWeight*c.HeuristicScore +
		s.cfg.AdvisoryWeight*advisory +
		c.QualityScore +
		c.FeedbackScore +
		c.ConsistencyBonus
	return round3(clamp01(score))
}

// scoreAdvisory fans candidate scoring out over a bounded worker pool.
// Failures degrade to an absent advisory score and a job warning.
func (s *candidateScorer) scoreAdvisory(ctx context.Context, candidates []*model.CandidateFile) []string {
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var warnings []string

	for _, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(c *model.CandidateFile) {
			defer wg.Done()
			defer func() { <-sem }()

			score, reason, err := s.advisory.Score(ctx, c)
			if err != nil {
				s.logger.Warn("advisory scoring skipped for %s: %v", c.RelPath, err)
				mu.Lock()
				warnings = append(warnings, "advisory score unavailable for "+c.RelPath)
				mu.Unlock()
				return
			}
			c.AdvisoryScore = &score
			c.AdvisoryReason = reason
		}(c)
	}
	wg.Wait()

	sort.Strings(warnings)
	return warnings
}

// SortCandidates orders candidates deterministically: combined score
// descending, then trust bonus descending, then relative path ascending.
func SortCandidates(candidates []*model.CandidateFile) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.TrustBonus != b.TrustBonus {
			return a.TrustBonus > b.TrustBonus
		}
		return a.RelPath < b.RelPath
	})
}

func trustBonus(relPath string) float64 {
	for _, segment := range strings.Split(strings.ToLower(relPath), "/") {
		if _, ok := highTrustSegments[segment]; ok {
			return 0.05
		}
		if _, ok := lowTrustSegments[segment]; ok {
			return -0.05
		}
	}
	return 0
}

func groupByComponent(candidates []*model.CandidateFile) map[string][]*model.CandidateFile {
	groups := make(map[string][]*model.CandidateFile)
	for _, c := range candidates {
		groups[c.ComponentKey] = append(groups[c.ComponentKey], c)
	}
	return groups
}

func bestOfKind(candidates []*model.CandidateFile, kind model.CandidateKind) *model.CandidateFile {
	var best *model.CandidateFile
	for _, c := range candidates {
		if c.Kind != kind {
			continue
		}
		if best == nil || less(best, c) {
			best = c
		}
	}
	return best
}

// less reports whether b outranks a under the deterministic ordering.
func less(a, b *model.CandidateFile) bool {
	if a.CombinedScore != b.CombinedScore {
		return b.CombinedScore > a.CombinedScore
	}
	if a.TrustBonus != b.TrustBonus {
		return b.TrustBonus > a.TrustBonus
	}
	return b.RelPath < a.RelPath
}

func extOf(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx:]
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
