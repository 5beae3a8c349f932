// ABOUTME: Tests for the classification engine
// ABOUTME: Covers tier thresholds, weighted scoring, idempotent updates and rescoring

package scoring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/leadflow/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedLead(t *testing.T, st *store.SQLiteStore, lead *store.Lead) {
	t.Helper()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, st.CreateLead(context.Background(), lead))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score int
		want  store.Tier
	}{
		{100, store.TierHot},
		{80, store.TierHot},
		{79, store.TierWarm},
		{50, store.TierWarm},
		{49, store.TierCold},
		{20, store.TierCold},
		{19, store.TierDiscard},
		{0, store.TierDiscard},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.score), "score %d", tt.score)
	}
}

func TestComputeScore(t *testing.T) {
	engine := NewEngine(nil, DefaultWeights(), nil)

	tests := []struct {
		name string
		lead store.Lead
		want int
	}{
		{"no flags", store.Lead{}, 0},
		{"qualifying claim only", store.Lead{HasQualifyingClaim: true}, 50},
		{"eligible only", store.Lead{Eligible: true}, 25},
		{"urgency only", store.Lead{HighUrgency: true}, 15},
		{"documents only", store.Lead{DocumentsComplete: true}, 10},
		{"all flags", store.Lead{
			HasQualifyingClaim: true,
			Eligible:           true,
			HighUrgency:        true,
			DocumentsComplete:  true,
		}, 100},
		{"claim and urgency", store.Lead{HasQualifyingClaim: true, HighUrgency: true}, 65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.ComputeScore(&tt.lead))
		})
	}
}

func TestComputeScore_ClampsAbove100(t *testing.T) {
	engine := NewEngine(nil, Weights{
		QualifyingClaim:   90,
		Eligible:          90,
		HighUrgency:       0,
		DocumentsComplete: 0,
	}, nil)

	lead := &store.Lead{HasQualifyingClaim: true, Eligible: true}
	assert.Equal(t, 100, engine.ComputeScore(lead))
}

func TestUpdateClassification_ChangeWritesOneAuditRecord(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, DefaultWeights(), nil)
	ctx := context.Background()

	seedLead(t, st, &store.Lead{ID: "lead-1", Address: "5511999994001", Classification: store.TierDiscard})

	changed, err := engine.UpdateClassification(ctx, "lead-1", store.TierWarm, store.ActorManual, "operator review")
	require.NoError(t, err)
	assert.True(t, changed)

	lead, err := st.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, store.TierWarm, lead.Classification)

	records, err := st.ListAudit(ctx, "lead-1", store.StreamDecision, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "discard", records[0].Previous)
	assert.Equal(t, "warm", records[0].New)
	assert.Equal(t, "operator review", records[0].Reason)
	assert.Equal(t, store.ActorManual, records[0].Actor)
}

func TestUpdateClassification_SameTierNoAudit(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, DefaultWeights(), nil)
	ctx := context.Background()

	seedLead(t, st, &store.Lead{ID: "lead-2", Address: "5511999994002", Classification: store.TierWarm})

	changed, err := engine.UpdateClassification(ctx, "lead-2", store.TierWarm, store.ActorAI, "redundant call")
	require.NoError(t, err)
	assert.False(t, changed)

	count, err := st.CountAudit(ctx, "lead-2", store.StreamAll)
	require.NoError(t, err)
	assert.Zero(t, count, "redundant update must not create audit rows")
}

func TestUpdateClassification_RepeatedCallsAuditOnce(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, DefaultWeights(), nil)
	ctx := context.Background()

	seedLead(t, st, &store.Lead{ID: "lead-3", Address: "5511999994003", Classification: store.TierDiscard})

	for range 3 {
		_, err := engine.UpdateClassification(ctx, "lead-3", store.TierHot, store.ActorAI, "hot signal")
		require.NoError(t, err)
	}

	count, err := st.CountAudit(ctx, "lead-3", store.StreamDecision)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the first call changes anything")
}

func TestUpdateClassification_NotFound(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, DefaultWeights(), nil)

	_, err := engine.UpdateClassification(context.Background(), "ghost", store.TierHot, store.ActorAI, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRescore_CrossesTierBoundary(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, DefaultWeights(), nil)
	ctx := context.Background()

	// Flags sum to 85: claim 50 + eligible 25 + documents 10
	seedLead(t, st, &store.Lead{
		ID:                 "lead-4",
		Address:            "5511999994004",
		Score:              10,
		Classification:     store.TierDiscard,
		HasQualifyingClaim: true,
		Eligible:           true,
		DocumentsComplete:  true,
	})

	changed, err := engine.Rescore(ctx, "lead-4", store.ActorAI, "claim details confirmed")
	require.NoError(t, err)
	assert.True(t, changed)

	lead, err := st.GetLead(ctx, "lead-4")
	require.NoError(t, err)
	assert.Equal(t, 85, lead.Score)
	assert.Equal(t, store.TierHot, lead.Classification)

	records, err := st.ListAudit(ctx, "lead-4", store.StreamScore, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10", records[0].Previous)
	assert.Equal(t, "85", records[0].New)
	assert.Equal(t, float64(10), records[0].Metadata["previousScore"])
	assert.Equal(t, float64(85), records[0].Metadata["newScore"])
	assert.Equal(t, "discard", records[0].Metadata["previousClassification"])
	assert.Equal(t, "hot", records[0].Metadata["newClassification"])
}

func TestRescore_NoChangeIsNoOp(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, DefaultWeights(), nil)
	ctx := context.Background()

	// Score already matches the flags
	seedLead(t, st, &store.Lead{
		ID:                 "lead-5",
		Address:            "5511999994005",
		Score:              50,
		Classification:     store.TierWarm,
		HasQualifyingClaim: true,
	})

	changed, err := engine.Rescore(ctx, "lead-5", store.ActorAI, "inbound message")
	require.NoError(t, err)
	assert.False(t, changed)

	count, err := st.CountAudit(ctx, "lead-5", store.StreamAll)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.toml")
	content := "qualifying_claim = 40\neligible = 30\nhigh_urgency = 20\ndocuments_complete = 10\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	w, err := LoadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, Weights{QualifyingClaim: 40, Eligible: 30, HighUrgency: 20, DocumentsComplete: 10}, w)
}

func TestLoadWeights_MissingFile(t *testing.T) {
	_, err := LoadWeights(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
