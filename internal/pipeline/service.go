// Package pipeline contains the pure business logic for the pipeline
// service: the stage taxonomy, the status-transition manager, and the
// funnel analytics engine. It is transport-agnostic — the HTTP handlers
// in handler.go are a thin layer over Service.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"talentflow/pipeline-service/internal/metrics"
)

const (
	channelStageMoved      = "EVENT_STAGE_MOVED"
	channelCandidateAdded  = "EVENT_CANDIDATE_ADDED"
	channelCandidatePlaced = "EVENT_CANDIDATE_PLACED"

	requestDedupeTTL = 10 * time.Minute
)

// Service encapsulates the transition manager and the cached funnel
// reads. Writes are serialized per candidate; candidates never share
// mutable state, so cross-candidate requests proceed in parallel.
type Service struct {
	store   *Store
	rdb     *redis.Client
	locks   *candidateLocks
	overlay *StageOverlay

	lockWait time.Duration
	cacheTTL time.Duration
}

// NewService returns a configured Service. lockWait bounds how long one
// transition waits on another for the same candidate; cacheTTL bounds how
// stale a cached funnel report may be.
func NewService(store *Store, rdb *redis.Client, lockWait, cacheTTL time.Duration) *Service {
	return &Service{
		store:    store,
		rdb:      rdb,
		locks:    newCandidateLocks(),
		overlay:  NewStageOverlay(),
		lockWait: lockWait,
		cacheTTL: cacheTTL,
	}
}

// ─── Candidate lifecycle ─────────────────────────────────────────────────────

// AddCandidate creates a candidate on a job's pipeline at SOURCED with an
// empty history.
func (s *Service) AddCandidate(ctx context.Context, jobID, fullName string) (*Candidate, error) {
	if jobID == "" {
		return nil, &ValidationError{Msg: "jobId is required"}
	}

	c, err := s.store.Insert(ctx, jobID, fullName)
	if err != nil {
		return nil, err
	}

	s.invalidateFunnel(ctx, jobID)
	s.publish(ctx, channelCandidateAdded, map[string]string{
		"type":        channelCandidateAdded,
		"candidateId": c.ID,
		"jobId":       jobID,
	})
	return c, nil
}

// ListCandidates returns a job's candidates, newest activity first,
// optionally filtered by confirmed stage. Each candidate's EffectiveStage
// folds in any in-flight speculative move.
func (s *Service) ListCandidates(ctx context.Context, jobID, stageFilter string) ([]Candidate, error) {
	if jobID == "" {
		return nil, &ValidationError{Msg: "jobId is required"}
	}

	var filter Stage
	if stageFilter != "" {
		parsed, err := ParseStage(stageFilter)
		if err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
		filter = parsed
	}

	candidates, err := s.store.List(ctx, jobID, filter)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i].EffectiveStage = s.overlay.Effective(candidates[i].ID, candidates[i].CurrentStage)
	}
	return candidates, nil
}

// GetCandidate returns a single candidate with its effective stage.
func (s *Service) GetCandidate(ctx context.Context, candidateID string) (*Candidate, error) {
	c, err := s.store.Get(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	c.EffectiveStage = s.overlay.Effective(c.ID, c.CurrentStage)
	return c, nil
}

// SetScore records the latest evaluation score (0–100) for a candidate.
func (s *Service) SetScore(ctx context.Context, candidateID string, score float64) (*Candidate, error) {
	if score < 0 || score > 100 {
		return nil, &ValidationError{Msg: "score must be between 0 and 100"}
	}
	return s.store.SetScore(ctx, candidateID, score)
}

// ─── Transition manager ──────────────────────────────────────────────────────

// RequestTransition moves a candidate to targetStage: exactly one status
// event is appended and current_stage updated, as a single atomic step.
// Failure leaves history and current_stage untouched.
//
// The speculative overlay is updated before any blocking work so reads
// reflect the caller's intent immediately, and confirmed or reverted when
// the request resolves. requestID, when non-empty, deduplicates
// network-level retries of the same attempt: a replayed id returns the
// confirmed state without a second append. Repeated requests with fresh
// ids append new events by design — repeated moves are legitimate history.
func (s *Service) RequestTransition(ctx context.Context, candidateID, targetStage, note, requestID string) (*ConfirmedState, error) {
	target, err := ParseStage(targetStage)
	if err != nil {
		metrics.RecordTransitionFailure("invalid_stage")
		return nil, &ValidationError{Msg: err.Error()}
	}
	if candidateID == "" {
		metrics.RecordTransitionFailure("not_found")
		return nil, ErrNotFound
	}

	token := s.overlay.Speculate(candidateID, target)

	release, err := s.locks.acquire(ctx, candidateID, s.lockWait)
	if err != nil {
		s.overlay.Revert(candidateID, token)
		metrics.RecordTransitionFailure("lock_timeout")
		return nil, err
	}
	defer release()

	// Same-attempt retry? The first delivery already committed; report
	// the confirmed state without appending again. The id is only marked
	// after a successful append, so a retry of a failed attempt goes
	// through normally.
	if requestID != "" && s.requestSeen(ctx, requestID) {
		current, err := s.store.CurrentStage(ctx, candidateID)
		if err != nil {
			s.overlay.Revert(candidateID, token)
			return nil, err
		}
		s.overlay.Confirm(candidateID, token)
		return &ConfirmedState{
			CandidateID:  candidateID,
			CurrentStage: current,
			Replayed:     true,
		}, nil
	}

	current, err := s.store.CurrentStage(ctx, candidateID)
	if err != nil {
		s.overlay.Revert(candidateID, token)
		if errors.Is(err, ErrNotFound) {
			metrics.RecordTransitionFailure("not_found")
		} else {
			metrics.RecordTransitionFailure("persistence")
		}
		return nil, err
	}

	event := StatusEvent{
		Stage: target,
		At:    time.Now().UTC().Format(time.RFC3339),
		Note:  note,
	}
	c, err := s.store.ApplyTransition(ctx, candidateID, target, event)
	if err != nil {
		s.overlay.Revert(candidateID, token)
		metrics.RecordTransitionFailure("persistence")
		return nil, err
	}

	s.overlay.Confirm(candidateID, token)
	if requestID != "" {
		s.markRequest(ctx, requestID, candidateID)
	}
	metrics.RecordTransition(string(target))
	s.invalidateFunnel(ctx, c.JobID)

	s.publish(ctx, channelStageMoved, map[string]string{
		"type":        channelStageMoved,
		"candidateId": candidateID,
		"jobId":       c.JobID,
		"from":        string(current),
		"to":          string(target),
		"at":          event.At,
	})
	if IsPlaced(target) {
		s.publish(ctx, channelCandidatePlaced, map[string]string{
			"type":        channelCandidatePlaced,
			"candidateId": candidateID,
			"jobId":       c.JobID,
		})
	}

	return &ConfirmedState{
		CandidateID:   candidateID,
		CurrentStage:  c.CurrentStage,
		AppendedEvent: &event,
	}, nil
}

// requestSeen reports whether a request id already committed. Dedupe is
// best-effort: on a Redis error the transition proceeds. Retries for the
// same candidate serialize on the candidate lock, so seen-then-mark is
// not racy where it matters.
func (s *Service) requestSeen(ctx context.Context, requestID string) bool {
	n, err := s.rdb.Exists(ctx, requestKey(requestID)).Result()
	if err != nil {
		slog.Warn("request dedupe check failed", "requestId", requestID, "err", err)
		return false
	}
	return n > 0
}

// markRequest records a committed request id so a network-level retry of
// the same attempt does not double-append.
func (s *Service) markRequest(ctx context.Context, requestID, candidateID string) {
	if err := s.rdb.Set(ctx, requestKey(requestID), candidateID, requestDedupeTTL).Err(); err != nil {
		slog.Warn("request dedupe mark failed", "requestId", requestID, "err", err)
	}
}

func requestKey(requestID string) string {
	return "pipeline:transition:req:" + requestID
}

// ─── Funnel reads ────────────────────────────────────────────────────────────

// Funnel returns the funnel report for a job, from cache when fresh.
func (s *Service) Funnel(ctx context.Context, jobID string) (*FunnelReport, error) {
	if jobID == "" {
		return nil, &ValidationError{Msg: "jobId is required"}
	}

	if cached, err := s.rdb.Get(ctx, funnelCacheKey(jobID)).Bytes(); err == nil {
		var report FunnelReport
		if err := json.Unmarshal(cached, &report); err == nil {
			metrics.RecordFunnelCacheLookup(true)
			return &report, nil
		}
		slog.Warn("discarding undecodable cached funnel report", "jobId", jobID)
	}
	metrics.RecordFunnelCacheLookup(false)

	return s.RefreshFunnel(ctx, jobID)
}

// RefreshFunnel recomputes a job's funnel report from a fresh snapshot
// and re-warms the cache. Used on cache misses and by the scheduler.
func (s *Service) RefreshFunnel(ctx context.Context, jobID string) (*FunnelReport, error) {
	snapshot, err := s.store.Snapshot(ctx, jobID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	report := ComputeFunnel(snapshot, time.Now().UTC())
	report.JobID = jobID
	report.Bottleneck, report.BottleneckFound = DetectBottleneck(report)
	metrics.ObserveFunnelCompute(time.Since(started))

	if raw, err := json.Marshal(report); err == nil {
		if err := s.rdb.Set(ctx, funnelCacheKey(jobID), raw, s.cacheTTL).Err(); err != nil {
			slog.Warn("funnel cache write failed", "jobId", jobID, "err", err)
		}
	}
	return &report, nil
}

// JobIDs lists every job with at least one candidate.
func (s *Service) JobIDs(ctx context.Context) ([]string, error) {
	return s.store.JobIDs(ctx)
}

func funnelCacheKey(jobID string) string {
	return fmt.Sprintf("pipeline:funnel:%s", jobID)
}

// invalidateFunnel drops a job's cached report after a confirmed write.
// Non-fatal: the TTL bounds staleness if the delete fails.
func (s *Service) invalidateFunnel(ctx context.Context, jobID string) {
	if err := s.rdb.Del(ctx, funnelCacheKey(jobID)).Err(); err != nil {
		slog.Warn("funnel cache invalidation failed", "jobId", jobID, "err", err)
	}
}

// publish sends a JSON event to Redis. Non-fatal: downstream consumers
// are best-effort listeners.
func (s *Service) publish(ctx context.Context, channel string, payload map[string]string) {
	event, _ := json.Marshal(payload)
	if err := s.rdb.Publish(ctx, channel, event).Err(); err != nil {
		slog.Warn("publish failed", "channel", channel, "err", err)
	}
}
