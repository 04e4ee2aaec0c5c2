package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	appContext "github.com/alphabatem/common/context"
	"github.com/codeforge-academy/sentinel_api/dto"
	"github.com/codeforge-academy/sentinel_api/model"
	"github.com/codeforge-academy/sentinel_api/shared"
	log "github.com/sirupsen/logrus"
)

// CopyPasteService correlates copy events against later pastes to attribute
// submitted code to AI output. Copy records are short-lived store entries;
// the durable output is a CodeProvenance row plus marks on the source
// interaction.
type CopyPasteService struct {
	appContext.DefaultService

	matchWindow time.Duration
	threshold   float64

	redisSvc *RedisService
	sqlSvc   *PostgresService
}

const COPY_PASTE_SVC = "copy_paste_svc"

const (
	copyKeyPrefix = "copypaste:"

	defaultMatchWindow         = 45 * time.Second
	defaultSimilarityThreshold = 0.85
)

func (svc CopyPasteService) Id() string {
	return COPY_PASTE_SVC
}

func (svc *CopyPasteService) Configure(ctx *appContext.Context) error {
	svc.matchWindow = envDuration("COPY_PASTE_MATCH_WINDOW", defaultMatchWindow)
	svc.threshold = defaultSimilarityThreshold
	return svc.DefaultService.Configure(ctx)
}

func (svc *CopyPasteService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

// TrackCopyPaste ingests a copy or paste event. A paste with no matching copy
// is a normal result, not an error.
func (svc *CopyPasteService) TrackCopyPaste(ctx context.Context, userID string, req dto.CopyPasteRequest) (*dto.CopyPasteResult, error) {
	switch req.Action {
	case shared.CopyPasteActionCopy:
		return svc.trackCopy(ctx, userID, req)
	case shared.CopyPasteActionPaste:
		return svc.trackPaste(ctx, userID, req)
	default:
		return nil, shared.NewValidationError(fmt.Sprintf("unknown copy-paste action %q", req.Action), nil)
	}
}

func (svc *CopyPasteService) trackCopy(ctx context.Context, userID string, req dto.CopyPasteRequest) (*dto.CopyPasteResult, error) {
	now := time.Now()

	lineCount := req.LineCount
	if lineCount == 0 {
		lineCount = strings.Count(req.Content, "\n") + 1
	}

	event := dto.CopyEvent{
		UserID:              userID,
		AttemptID:           req.AttemptID,
		Content:             req.Content,
		LineCount:           lineCount,
		SourceInteractionID: req.SourceInteractionID,
		Timestamp:           now,
	}

	key := fmt.Sprintf("%s%s:%s:copy:%d", copyKeyPrefix, userID, req.AttemptID, now.UnixNano())
	if err := svc.redisSvc.Set(ctx, key, event, svc.matchWindow); err != nil {
		return nil, fmt.Errorf("failed to store copy event: %w", err)
	}

	if req.SourceInteractionID != "" {
		if err := svc.sqlSvc.Governance().MarkInteractionCopied(req.SourceInteractionID, now); err != nil {
			log.Printf("Failed to mark interaction %s copied: %v", req.SourceInteractionID, err)
		}
	}

	return &dto.CopyPasteResult{Tracked: true}, nil
}

func (svc *CopyPasteService) trackPaste(ctx context.Context, userID string, req dto.CopyPasteRequest) (*dto.CopyPasteResult, error) {
	now := time.Now()

	pattern := fmt.Sprintf("%s%s:%s:copy:*", copyKeyPrefix, userID, req.AttemptID)
	keys, err := svc.redisSvc.ScanKeys(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate copy events: %w", err)
	}
	// Oldest copy first; the first record at/above the threshold wins, not
	// the best one.
	sort.Strings(keys)

	for _, key := range keys {
		var event dto.CopyEvent
		found, err := svc.redisSvc.GetJSON(ctx, key, &event)
		if err != nil {
			return nil, fmt.Errorf("failed to load copy event: %w", err)
		}
		if !found {
			continue // expired between scan and read
		}

		delta := now.Sub(event.Timestamp)
		if delta > svc.matchWindow {
			continue
		}

		similarity := textSimilarity(event.Content, req.Content)
		if similarity < svc.threshold {
			continue
		}

		if err := svc.recordMatch(userID, req, &event, similarity, delta, now); err != nil {
			return nil, err
		}

		svc.recomputeDependencyIndex(req.AttemptID)
		recordPasteMatch()

		return &dto.CopyPasteResult{
			Tracked:       true,
			Matched:       true,
			Similarity:    similarity,
			InteractionID: event.SourceInteractionID,
			TimeDeltaMs:   delta.Milliseconds(),
		}, nil
	}

	return &dto.CopyPasteResult{Tracked: true}, nil
}

// recordMatch emits the durable provenance record and, when the copy carried
// a known source, marks that interaction pasted with the pasted code size.
func (svc *CopyPasteService) recordMatch(userID string, req dto.CopyPasteRequest, event *dto.CopyEvent, similarity float64, delta time.Duration, now time.Time) error {
	pastedChars := utf8.RuneCountInString(req.Content)

	record := &model.CodeProvenance{
		UserID:        userID,
		AttemptID:     req.AttemptID,
		InteractionID: event.SourceInteractionID,
		PastedChars:   pastedChars,
		LineCount:     event.LineCount,
		Similarity:    similarity,
		TimeDeltaMs:   delta.Milliseconds(),
	}
	if err := svc.sqlSvc.Governance().CreateProvenance(record); err != nil {
		return fmt.Errorf("failed to record provenance: %w", err)
	}

	if event.SourceInteractionID != "" {
		if err := svc.sqlSvc.Governance().MarkInteractionPasted(event.SourceInteractionID, now, pastedChars); err != nil {
			log.Printf("Failed to mark interaction %s pasted: %v", event.SourceInteractionID, err)
		}
	}

	return nil
}

// recomputeDependencyIndex refreshes the fraction of the attempt's code
// attributable to copied AI output. Observability only; failures must not
// fail the tracking call.
func (svc *CopyPasteService) recomputeDependencyIndex(attemptID string) {
	repo := svc.sqlSvc.Governance()

	aiChars, err := repo.SumProvenanceChars(attemptID)
	if err != nil {
		log.Printf("Dependency index recompute failed for attempt %s: %v", attemptID, err)
		return
	}
	pasteCount, err := repo.CountProvenance(attemptID)
	if err != nil {
		log.Printf("Dependency index recompute failed for attempt %s: %v", attemptID, err)
		return
	}

	stats, err := svc.sqlSvc.Challenges().GetAttemptStats(attemptID)
	if err != nil {
		stats = &model.AttemptStats{AttemptID: attemptID}
	}

	stats.AICopiedChars = int(aiChars)
	stats.PasteCount = int(pasteCount)

	total := stats.SubmittedChars
	if total < stats.AICopiedChars {
		total = stats.AICopiedChars
	}
	if total > 0 {
		stats.DependencyIndex = float64(stats.AICopiedChars) / float64(total)
	}

	if err := svc.sqlSvc.Challenges().UpsertAttemptStats(stats); err != nil {
		log.Printf("Failed to persist attempt stats for %s: %v", attemptID, err)
	}
}

// textSimilarity normalizes edit distance by the longer string's length:
// identical strings score 1.0, fully distinct strings score 0.
func textSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}
