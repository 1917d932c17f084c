package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"both empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	a := []float32{0.3, -0.7, 0.2, 0.9}
	b := []float32{-0.1, 0.5, 0.8, -0.2}
	got := CosineSimilarity(a, b)
	assert.GreaterOrEqual(t, got, -1.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestEmbeddingTextTruncation(t *testing.T) {
	summary := "short summary"
	msg := msgAt("m1", time.Now())
	msg.Summary = &summary
	msg.Body = strings.Repeat("x", bodyCharBudget+500)

	text := EmbeddingText(msg)
	assert.Contains(t, text, "Subject: subject m1")
	assert.Contains(t, text, "Summary: short summary")
	assert.Contains(t, text, truncationMark)
	assert.Less(t, len(text), bodyCharBudget+200)
}

func TestGenerateEmbeddingsSkipsFailures(t *testing.T) {
	now := time.Now()
	good := msgAt("good", now)
	bad := msgAt("bad", now.Add(-time.Hour))
	repo := newFakeMessageRepo(good, bad)

	embedder := &fakeEmbedder{
		def:     []float32{1, 0, 0},
		failFor: EmbeddingText(bad),
	}
	pipeline := NewEmbeddingPipeline(repo, embedder, zap.NewNop())
	pipeline.SetBatching(10, 0)

	n, err := pipeline.GenerateEmbeddings(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := repo.GetByID("good")
	assert.True(t, stored.ProcessedForVector)
	require.NotNil(t, stored.Embedding)

	// The failed message stays unprocessed and is picked up next run.
	failed, _ := repo.GetByID("bad")
	assert.False(t, failed.ProcessedForVector)
	remaining, _ := repo.FindUnprocessed(50)
	require.Len(t, remaining, 1)
	assert.Equal(t, "bad", remaining[0].ID)
}

func TestGenerateEmbeddingsNothingToDo(t *testing.T) {
	repo := newFakeMessageRepo()
	pipeline := NewEmbeddingPipeline(repo, &fakeEmbedder{def: []float32{1}}, zap.NewNop())

	n, err := pipeline.GenerateEmbeddings(context.Background(), 50)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindSimilarRanksByScore(t *testing.T) {
	now := time.Now()
	near := msgAt("close", now.Add(-2*time.Hour))
	far := msgAt("far", now.Add(-time.Hour))
	unembedded := msgAt("unembedded", now)

	repo := newFakeMessageRepo(near, far, unembedded)
	require.NoError(t, repo.UpdateEmbedding("close", []float32{1, 0, 0}))
	require.NoError(t, repo.UpdateEmbedding("far", []float32{0, 1, 0}))

	embedder := &fakeEmbedder{
		vectors: map[string][]float32{"project status": {0.9, 0.1, 0}},
		def:     []float32{0, 0, 1},
	}
	pipeline := NewEmbeddingPipeline(repo, embedder, zap.NewNop())

	got, err := pipeline.FindSimilar(context.Background(), "project status", SimilarOptions{Limit: 10})
	require.NoError(t, err)

	// Only embedded messages participate, best match first.
	require.Len(t, got, 2)
	assert.Equal(t, "close", got[0].ID)
	assert.Equal(t, "far", got[1].ID)
}

func TestFindSimilarEmptyQuery(t *testing.T) {
	pipeline := NewEmbeddingPipeline(newFakeMessageRepo(), &fakeEmbedder{def: []float32{1}}, zap.NewNop())
	got, err := pipeline.FindSimilar(context.Background(), "   ", SimilarOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindSimilarHonorsLimit(t *testing.T) {
	now := time.Now()
	repo := newFakeMessageRepo(
		msgAt("a", now), msgAt("b", now), msgAt("c", now),
	)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.UpdateEmbedding(id, []float32{1, 0, 0}))
	}
	pipeline := NewEmbeddingPipeline(repo, &fakeEmbedder{def: []float32{1, 0, 0}}, zap.NewNop())

	got, err := pipeline.FindSimilar(context.Background(), "anything", SimilarOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
