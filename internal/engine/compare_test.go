package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/prompt-pruner/internal/compression"
	"github.com/compresr/prompt-pruner/internal/engine"
	"github.com/compresr/prompt-pruner/internal/store"
)

func TestCompare_AllVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pruned, err := f.eng.Prune(ctx, pruneReq(foxPrompt, 0.6))
	require.NoError(t, err)
	_, err = f.eng.Hybrid(ctx, engine.HybridRequest{RunID: pruned.RunID, SimThreshold: ptr(0.3), KeepRatioPhrases: ptr(0.8)})
	require.NoError(t, err)

	resp, err := f.eng.Compare(ctx, engine.CompareRequest{RunID: pruned.RunID})
	require.NoError(t, err)
	require.Len(t, resp.Outputs, 3)
	assert.Equal(t, int32(3), f.gen.calls.Load())

	orig := resp.Outputs[0]
	assert.Equal(t, engine.Original, orig.Which)
	assert.Equal(t, "completion: "+foxPrompt, orig.Text)
	assert.Equal(t, 14, orig.PromptWords)
	assert.Nil(t, orig.Similarity)

	for _, out := range resp.Outputs[1:] {
		require.NotNil(t, out.Similarity, out.Which.String())
		assert.Greater(t, *out.Similarity, 0.0)
		assert.LessOrEqual(t, *out.Similarity, 1.0)
		assert.Less(t, out.PromptWords, 14)
	}
	assert.Equal(t, engine.Pruned, resp.Outputs[1].Which)
	assert.Equal(t, engine.Hybrid, resp.Outputs[2].Which)
}

func TestCompare_OnlyOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.store.CreateOrGet(ctx, "", foxPrompt)
	require.NoError(t, err)

	resp, err := f.eng.Compare(ctx, engine.CompareRequest{RunID: run.RunID})
	require.NoError(t, err)
	require.Len(t, resp.Outputs, 1)
}

func TestCompare_SimilarityFailureIsPerOutput(t *testing.T) {
	f := newFixture(t, func(d *engine.Deps) { d.Similarity = failingSimilarity{} })
	ctx := context.Background()

	run, err := f.store.CreateOrGet(ctx, "", foxPrompt)
	require.NoError(t, err)
	require.NoError(t, f.store.PutCompressed(ctx, run.RunID, "quick fox meadow", nil,
		compression.Config{KeepRatio: 0.2, MaxPhraseLen: 3, SimThreshold: 0}))

	resp, err := f.eng.Compare(ctx, engine.CompareRequest{RunID: run.RunID})
	require.NoError(t, err)
	require.Len(t, resp.Outputs, 2)
	assert.Nil(t, resp.Outputs[1].Similarity)
	assert.Contains(t, resp.Outputs[1].SimilarityError, "scoring unavailable")
}

func TestCompare_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Compare(ctx, engine.CompareRequest{})
	assert.ErrorIs(t, err, compression.ErrEmptyInput)

	_, err = f.eng.Compare(ctx, engine.CompareRequest{RunID: "missing"})
	assert.ErrorIs(t, err, compression.ErrRunNotFound)

	failing := newFixture(t, func(d *engine.Deps) { d.Generator = failingGenerator{} })
	run, err := failing.store.CreateOrGet(ctx, "", foxPrompt)
	require.NoError(t, err)
	_, err = failing.eng.Compare(ctx, engine.CompareRequest{RunID: run.RunID})
	assert.ErrorIs(t, err, compression.ErrGenerationUnavailable)
}

func TestVariant_Text(t *testing.T) {
	for _, name := range []string{"original", "pruned", "hybrid"} {
		v, err := engine.ParseVariant(name)
		require.NoError(t, err)
		assert.Equal(t, name, v.String())
	}

	_, err := engine.ParseVariant("compressed")
	assert.ErrorIs(t, err, compression.ErrInvalidConfig)

	var req engine.GenerateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"which":"hybrid","run_id":"r1"}`), &req))
	assert.Equal(t, engine.Hybrid, req.Which)

	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"p"}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"which":"summary"}`), &req))

	b, err := json.Marshal(engine.GenerateResponse{Text: "t", Which: engine.Pruned})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"t","which":"pruned"}`, string(b))
}

func TestVariant_Resolve(t *testing.T) {
	compressed, hybrid := "short", "shorter"
	tests := []struct {
		name     string
		run      store.Run
		which    engine.Variant
		wantText string
		wantUsed engine.Variant
		wantErr  error
	}{
		{"original", store.Run{OriginalPrompt: "full"}, engine.Original, "full", engine.Original, nil},
		{"pruned", store.Run{OriginalPrompt: "full", Compressed: &compressed}, engine.Pruned, "short", engine.Pruned, nil},
		{"pruned missing", store.Run{OriginalPrompt: "full"}, engine.Pruned, "", engine.Pruned, compression.ErrRunNotFound},
		{"hybrid", store.Run{OriginalPrompt: "full", Compressed: &compressed, Hybrid: &hybrid}, engine.Hybrid, "shorter", engine.Hybrid, nil},
		{"hybrid falls back to pruned", store.Run{OriginalPrompt: "full", Compressed: &compressed}, engine.Hybrid, "short", engine.Pruned, nil},
		{"hybrid falls back to original", store.Run{OriginalPrompt: "full"}, engine.Hybrid, "full", engine.Original, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, used, err := tt.which.Resolve(&tt.run)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantUsed, used)
		})
	}
}
