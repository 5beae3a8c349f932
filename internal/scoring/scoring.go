// ABOUTME: Classification engine mapping lead scores to qualification tiers
// ABOUTME: Tier updates are idempotent and commit atomically with their audit record

package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/leadflow/internal/store"
)

// Classify maps a score to its classification tier.
func Classify(score int) store.Tier {
	switch {
	case score >= 80:
		return store.TierHot
	case score >= 50:
		return store.TierWarm
	case score >= 20:
		return store.TierCold
	default:
		return store.TierDiscard
	}
}

// LeadStore defines what the engine needs from storage.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*store.Lead, error)
	UpdateClassification(ctx context.Context, leadID string, prev, next store.Tier, rec *store.AuditRecord) (bool, error)
	UpdateScore(ctx context.Context, leadID string, prevScore, newScore int, prevTier, newTier store.Tier, rec *store.AuditRecord) (bool, error)
}

// Engine recomputes scores and applies classification changes.
type Engine struct {
	store   LeadStore
	weights Weights
	logger  *slog.Logger
}

// NewEngine creates an engine with the given weight table.
// Pass nil logger for default.
func NewEngine(store LeadStore, weights Weights, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		weights: weights,
		logger:  logger.With("component", "scoring"),
	}
}

// ComputeScore is a deterministic weighted sum over the lead's eligibility
// flags, clamped to 0-100. The weight table is configuration, not code.
func (e *Engine) ComputeScore(lead *store.Lead) int {
	score := 0
	if lead.HasQualifyingClaim {
		score += e.weights.QualifyingClaim
	}
	if lead.Eligible {
		score += e.weights.Eligible
	}
	if lead.HighUrgency {
		score += e.weights.HighUrgency
	}
	if lead.DocumentsComplete {
		score += e.weights.DocumentsComplete
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// UpdateClassification moves a lead to newTier. If the lead already holds
// newTier nothing is written and changed=false is returned; redundant calls
// never create duplicate audit rows. On change, exactly one decision-stream
// audit record commits with the tier update.
func (e *Engine) UpdateClassification(ctx context.Context, leadID string, newTier store.Tier, actor store.ActorKind, reason string) (bool, error) {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return false, err
	}

	if lead.Classification == newTier {
		return false, nil
	}

	rec := &store.AuditRecord{
		LeadID:   leadID,
		Stream:   store.StreamDecision,
		Previous: string(lead.Classification),
		New:      string(newTier),
		Reason:   reason,
		Actor:    actor,
	}

	changed, err := e.store.UpdateClassification(ctx, leadID, lead.Classification, newTier, rec)
	if err != nil {
		return false, fmt.Errorf("updating classification: %w", err)
	}
	if !changed {
		// Another writer moved the tier between our read and the CAS.
		// The winning writer logged its own record; nothing to do.
		e.logger.Debug("classification update lost race", "lead_id", leadID, "new", newTier)
		return false, nil
	}

	e.logger.Info("classification changed",
		"lead_id", leadID,
		"previous", lead.Classification,
		"new", newTier,
		"actor", actor,
	)
	return true, nil
}

// Rescore recomputes a lead's score from its eligibility flags and applies
// the resulting score and tier. When anything moves, one score-stream audit
// record carrying previous/new score and previous/new classification commits
// with the update.
func (e *Engine) Rescore(ctx context.Context, leadID string, actor store.ActorKind, reason string) (bool, error) {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		return false, err
	}

	newScore := e.ComputeScore(lead)
	newTier := Classify(newScore)
	if newScore == lead.Score && newTier == lead.Classification {
		return false, nil
	}

	rec := &store.AuditRecord{
		LeadID:   leadID,
		Stream:   store.StreamScore,
		Previous: fmt.Sprintf("%d", lead.Score),
		New:      fmt.Sprintf("%d", newScore),
		Reason:   reason,
		Actor:    actor,
		Metadata: map[string]any{
			"previousScore":          lead.Score,
			"newScore":               newScore,
			"previousClassification": string(lead.Classification),
			"newClassification":      string(newTier),
		},
	}

	changed, err := e.store.UpdateScore(ctx, leadID, lead.Score, newScore, lead.Classification, newTier, rec)
	if err != nil {
		return false, fmt.Errorf("updating score: %w", err)
	}
	if !changed {
		e.logger.Debug("rescore lost race", "lead_id", leadID)
		return false, nil
	}

	e.logger.Info("lead rescored",
		"lead_id", leadID,
		"previous_score", lead.Score,
		"new_score", newScore,
		"previous_classification", lead.Classification,
		"new_classification", newTier,
	)
	return true, nil
}
