package planner

import (
	"testing"

	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/test/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id, key string, kind model.CandidateKind, score float64) *model.CandidateFile {
	return &model.CandidateFile{
		ID:            id,
		ComponentKey:  key,
		Kind:          kind,
		RelPath:       key + "/" + id,
		CombinedScore: score,
	}
}

func testJob(components []*model.Component, candidates []*model.CandidateFile) *model.Job {
	return &model.Job{
		ID:         "job-1",
		Status:     model.StatusScanned,
		Components: components,
		Candidates: candidates,
	}
}

func TestBuildPlan_PicksHighestRankedPerKind(t *testing.T) {
	p := NewPlanBuilder(&mocks.MockLogger{})

	job := testJob(
		[]*model.Component{{Key: "ne555"}},
		[]*model.CandidateFile{
			candidate("sym-best", "ne555", model.KindSymbol, 0.9),
			candidate("sym-worse", "ne555", model.KindSymbol, 0.5),
			candidate("fp-1", "ne555", model.KindFootprint, 0.7),
			candidate("mdl-1", "ne555", model.KindModel, 0.6),
		},
	)

	plan, err := p.BuildPlan(job)
	require.NoError(t, err)
	assert.True(t, plan.Complete)
	assert.Empty(t, plan.Missing)

	selected := selectionMap(plan)
	assert.Equal(t, "sym-best", selected["ne555/symbol"])
	assert.Equal(t, "fp-1", selected["ne555/footprint"])
	assert.Equal(t, "mdl-1", selected["ne555/model"])

	assert.True(t, job.Candidates[0].Selected)
	assert.False(t, job.Candidates[1].Selected)
}

func TestBuildPlan_MissingRequiredKindMarksIncomplete(t *testing.T) {
	p := NewPlanBuilder(&mocks.MockLogger{})

	job := testJob(
		[]*model.Component{{Key: "ne555"}},
		[]*model.CandidateFile{
			candidate("sym-1", "ne555", model.KindSymbol, 0.9),
		},
	)

	plan, err := p.BuildPlan(job)
	require.NoError(t, err)
	assert.False(t, plan.Complete)
	assert.Equal(t, []string{"ne555/footprint"}, plan.Missing)
}

func TestBuildPlan_MissingModelStillComplete(t *testing.T) {
	p := NewPlanBuilder(&mocks.MockLogger{})

	job := testJob(
		[]*model.Component{{Key: "ne555"}},
		[]*model.CandidateFile{
			candidate("sym-1", "ne555", model.KindSymbol, 0.9),
			candidate("fp-1", "ne555", model.KindFootprint, 0.7),
		},
	)

	plan, err := p.BuildPlan(job)
	require.NoError(t, err)
	assert.True(t, plan.Complete)
}

func TestBuildPlan_OverrideWinsRegardlessOfScore(t *testing.T) {
	p := NewPlanBuilder(&mocks.MockLogger{})

	job := testJob(
		[]*model.Component{{Key: "ne555"}},
		[]*model.CandidateFile{
			candidate("sym-best", "ne555", model.KindSymbol, 0.9),
			candidate("sym-user", "ne555", model.KindSymbol, 0.2),
			candidate("fp-1", "ne555", model.KindFootprint, 0.7),
		},
	)

	require.NoError(t, p.SetSelection(job, "ne555", model.KindSymbol, "sym-user"))

	plan, err := p.BuildPlan(job)
	require.NoError(t, err)

	selected := selectionMap(plan)
	assert.Equal(t, "sym-user", selected["ne555/symbol"])
	for _, sel := range plan.Selections {
		if sel.Kind == model.KindSymbol {
			assert.True(t, sel.Overridden)
		}
	}
}

func TestBuildPlan_NoCandidates(t *testing.T) {
	p := NewPlanBuilder(&mocks.MockLogger{})
	_, err := p.BuildPlan(testJob(nil, nil))
	assert.ErrorIs(t, err, errs.ErrNoCandidate)
}

func TestSetSelection_Validation(t *testing.T) {
	p := NewPlanBuilder(&mocks.MockLogger{})

	job := testJob(
		[]*model.Component{{Key: "ne555"}},
		[]*model.CandidateFile{
			candidate("sym-1", "ne555", model.KindSymbol, 0.9),
		},
	)

	err := p.SetSelection(job, "missing", model.KindSymbol, "sym-1")
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)

	err = p.SetSelection(job, "ne555", model.KindSymbol, "nope")
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)

	// kind mismatch is an invalid parameter, not a lookup failure
	err = p.SetSelection(job, "ne555", model.KindFootprint, "sym-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrRecordNotFound)
}

func selectionMap(plan *model.Plan) map[string]string {
	out := make(map[string]string, len(plan.Selections))
	for _, sel := range plan.Selections {
		out[sel.ComponentKey+"/"+string(sel.Kind)] = sel.CandidateID
	}
	return out
}
