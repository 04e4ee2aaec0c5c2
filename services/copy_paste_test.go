package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/codeforge-academy/sentinel_api/shared"
)

const sampleSnippet = `func add(a, b int) int {
	return a + b
}`

func newTestCopyPasteService(t *testing.T) (*CopyPasteService, *PostgresService) {
	t.Helper()

	_, redisSvc := newTestRedis(t)
	sqlSvc := newTestDB(t)

	svc := &CopyPasteService{
		matchWindow: defaultMatchWindow,
		threshold:   defaultSimilarityThreshold,
		redisSvc:    redisSvc,
		sqlSvc:      sqlSvc,
	}
	return svc, sqlSvc
}

func createTestInteraction(t *testing.T, sqlSvc *PostgresService, userID, attemptID string) *model.AIInteraction {
	t.Helper()

	interaction, err := sqlSvc.Governance().CreateInteraction(&model.AIInteraction{
		UserID:        userID,
		AttemptID:     attemptID,
		ResponseChars: len(sampleSnippet),
	})
	require.NoError(t, err)
	return interaction
}

func TestCopyPaste_IdenticalPasteIsAttributed(t *testing.T) {
	svc, sqlSvc := newTestCopyPasteService(t)
	interaction := createTestInteraction(t, sqlSvc, "user-1", "attempt-1")

	copyResult, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID:           "attempt-1",
		Action:              shared.CopyPasteActionCopy,
		Content:             sampleSnippet,
		SourceInteractionID: interaction.ID,
	})
	require.NoError(t, err)
	assert.True(t, copyResult.Tracked)
	assert.False(t, copyResult.Matched)

	pasteResult, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionPaste,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)
	assert.True(t, pasteResult.Matched)
	assert.Equal(t, 1.0, pasteResult.Similarity)
	assert.Equal(t, interaction.ID, pasteResult.InteractionID)
	assert.GreaterOrEqual(t, pasteResult.TimeDeltaMs, int64(0))

	// The source interaction carries both marks.
	updated, err := sqlSvc.Governance().GetInteraction(interaction.ID)
	require.NoError(t, err)
	assert.True(t, updated.WasCopied)
	assert.True(t, updated.WasPasted)
	assert.Greater(t, updated.PastedCodeChars, 0)

	// And a durable provenance record exists.
	count, err := sqlSvc.Governance().CountProvenance("attempt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCopyPaste_LightEditStillMatches(t *testing.T) {
	svc, sqlSvc := newTestCopyPasteService(t)
	createTestInteraction(t, sqlSvc, "user-1", "attempt-1")

	_, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionCopy,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)

	// Rename one identifier; the bulk of the snippet is untouched.
	edited := `func sum(a, b int) int {
	return a + b
}`
	result, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionPaste,
		Content:   edited,
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.GreaterOrEqual(t, result.Similarity, defaultSimilarityThreshold)
	assert.Less(t, result.Similarity, 1.0)
}

func TestCopyPaste_RewrittenPasteDoesNotMatch(t *testing.T) {
	svc, _ := newTestCopyPasteService(t)

	_, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionCopy,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)

	rewritten := `def add(first, second):
    total = first + second
    return total`
	result, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionPaste,
		Content:   rewritten,
	})
	require.NoError(t, err)
	assert.True(t, result.Tracked)
	assert.False(t, result.Matched)
}

func TestCopyPaste_NoCrossAttemptMatching(t *testing.T) {
	svc, _ := newTestCopyPasteService(t)

	_, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionCopy,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)

	result, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-2",
		Action:    shared.CopyPasteActionPaste,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestCopyPaste_ExpiredCopyDoesNotMatch(t *testing.T) {
	mr, redisSvc := newTestRedis(t)
	svc := &CopyPasteService{
		matchWindow: defaultMatchWindow,
		threshold:   defaultSimilarityThreshold,
		redisSvc:    redisSvc,
		sqlSvc:      newTestDB(t),
	}

	_, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionCopy,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)

	mr.FastForward(defaultMatchWindow + time.Second)

	result, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionPaste,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestCopyPaste_DependencyIndexRecomputed(t *testing.T) {
	svc, sqlSvc := newTestCopyPasteService(t)

	require.NoError(t, sqlSvc.Challenges().UpsertAttemptStats(&model.AttemptStats{
		AttemptID:      "attempt-1",
		SubmittedChars: len(sampleSnippet) * 2,
	}))

	_, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionCopy,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)

	result, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    shared.CopyPasteActionPaste,
		Content:   sampleSnippet,
	})
	require.NoError(t, err)
	require.True(t, result.Matched)

	stats, err := sqlSvc.Challenges().GetAttemptStats("attempt-1")
	require.NoError(t, err)
	assert.Equal(t, len(sampleSnippet), stats.AICopiedChars)
	assert.Equal(t, 1, stats.PasteCount)
	assert.InDelta(t, 0.5, stats.DependencyIndex, 0.001)
}

func TestCopyPaste_UnknownActionRejected(t *testing.T) {
	svc, _ := newTestCopyPasteService(t)

	_, err := svc.TrackCopyPaste(context.Background(), "user-1", dto.CopyPasteRequest{
		AttemptID: "attempt-1",
		Action:    "drag",
		Content:   sampleSnippet,
	})
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.StatusCode)
}

func TestTextSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, textSimilarity("abc", "abc"))
	assert.Equal(t, 1.0, textSimilarity("", ""))
	assert.Equal(t, 0.0, textSimilarity("abcd", "wxyz"))

	// One substitution in ten runes.
	assert.InDelta(t, 0.9, textSimilarity("abcdefghij", "abcdefghiX"), 0.001)
}
