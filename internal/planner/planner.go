// planner/planner.go - Plan building from scored candidates
package planner

import (
	"fmt"
	"sort"
	"time"

	"kicomport/internal/errs"
	"kicomport/internal/model"
	"kicomport/pkg/logger"
)

// PlanBuilder turns scored candidates into a per-component selection plan and
// records user overrides.
type PlanBuilder interface {
	BuildPlan(job *model.Job) (*model.Plan, error)
	SetSelection(job *model.Job, componentKey string, kind model.CandidateKind, candidateID string) error
}

type planBuilder struct {
	logger logger.Logger
}

// NewPlanBuilder creates the plan builder
func NewPlanBuilder(logger logger.Logger) PlanBuilder {
	return &planBuilder{logger: logger}
}

// BuildPlan selects, for each component and required kind, the candidate with
// the highest combined score. A recorded user override wins regardless of
// score. Model candidates are selected when present but never gate
// completeness. The plan is stored even when incomplete.
func (p *planBuilder) BuildPlan(job *model.Job) (*model.Plan, error) {
	if len(job.Candidates) == 0 {
		return nil, errs.ErrNoCandidate
	}

	byID := make(map[string]*model.CandidateFile, len(job.Candidates))
	grouped := make(map[string]map[model.CandidateKind][]*model.CandidateFile)
	for _, c := range job.Candidates {
		byID[c.ID] = c
		c.Selected = false
		kinds, ok := grouped[c.ComponentKey]
		if !ok {
			kinds = make(map[model.CandidateKind][]*model.CandidateFile)
			grouped[c.ComponentKey] = kinds
		}
		kinds[c.Kind] = append(kinds[c.Kind], c)
	}

	plan := &model.Plan{
		JobID:     job.ID,
		CreatedAt: time.Now().UTC(),
	}

	selectedKinds := append([]model.CandidateKind{}, model.RequiredKinds...)
	selectedKinds = append(selectedKinds, model.KindModel)

	componentKeys := make([]string, 0, len(job.Components))
	for _, comp := range job.Components {
		componentKeys = append(componentKeys, comp.Key)
	}
	sort.Strings(componentKeys)
	compByKey := make(map[string]*model.Component, len(job.Components))
	for _, comp := range job.Components {
		compByKey[comp.Key] = comp
	}

	for _, key := range componentKeys {
		comp := compByKey[key]
		kinds := grouped[key]

		for _, kind := range selectedKinds {
			chosen, overridden, err := p.choose(comp, kind, kinds[kind], byID)
			if err != nil {
				return nil, err
			}
			if chosen == nil {
				if isRequired(kind) {
					plan.Missing = append(plan.Missing, fmt.Sprintf("%s/%s", key, kind))
				}
				continue
			}
			chosen.Selected = true
			if comp.Selected == nil {
				comp.Selected = make(map[model.CandidateKind]string)
			}
			comp.Selected[kind] = chosen.ID
			plan.Selections = append(plan.Selections, model.Selection{
				ComponentKey: key,
				Kind:         kind,
				CandidateID:  chosen.ID,
				Overridden:   overridden,
			})
		}
	}

	plan.Complete = len(plan.Missing) == 0
	if !plan.Complete {
		p.logger.Info("plan for job %s is incomplete, missing: %v", job.ID, plan.Missing)
	}
	return plan, nil
}

// choose resolves one component/kind slot. An override points at a specific
// candidate id; otherwise the first candidate in ranked order wins.
func (p *planBuilder) choose(comp *model.Component, kind model.CandidateKind,
	ranked []*model.CandidateFile, byID map[string]*model.CandidateFile) (*model.CandidateFile, bool, error) {
	if comp.Overridden[kind] {
		id := comp.Selected[kind]
		chosen, ok := byID[id]
		if !ok {
			return nil, false, fmt.Errorf("%w: overridden candidate %s for %s/%s",
				errs.ErrRecordNotFound, id, comp.Key, kind)
		}
		if chosen.Kind != kind || chosen.ComponentKey != comp.Key {
			return nil, false, errs.NewInvalidParamErr("candidateId",
				fmt.Sprintf("%s does not belong to %s/%s", id, comp.Key, kind))
		}
		return chosen, true, nil
	}
	if len(ranked) == 0 {
		return nil, false, nil
	}
	return ranked[0], false, nil
}

// SetSelection records a user override for one component/kind slot. The plan
// must be rebuilt afterwards to take effect.
func (p *planBuilder) SetSelection(job *model.Job, componentKey string, kind model.CandidateKind, candidateID string) error {
	var comp *model.Component
	for _, c := range job.Components {
		if c.Key == componentKey {
			comp = c
			break
		}
	}
	if comp == nil {
		return fmt.Errorf("%w: component %s", errs.ErrRecordNotFound, componentKey)
	}

	var candidate *model.CandidateFile
	for _, c := range job.Candidates {
		if c.ID == candidateID {
			candidate = c
			break
		}
	}
	if candidate == nil {
		return fmt.Errorf("%w: candidate %s", errs.ErrRecordNotFound, candidateID)
	}
	if candidate.ComponentKey != componentKey || candidate.Kind != kind {
		return errs.NewInvalidParamErr("candidateId",
			fmt.Sprintf("%s does not belong to %s/%s", candidateID, componentKey, kind))
	}

	if comp.Selected == nil {
		comp.Selected = make(map[model.CandidateKind]string)
	}
	if comp.Overridden == nil {
		comp.Overridden = make(map[model.CandidateKind]bool)
	}
	comp.Selected[kind] = candidateID
	comp.Overridden[kind] = true

	p.logger.Info("override recorded for job %s: %s/%s -> %s", job.ID, componentKey, kind, candidateID)
	return nil
}

func isRequired(kind model.CandidateKind) bool {
	for _, required := range model.RequiredKinds {
		if kind == required {
			return true
		}
	}
	return false
}
