// Package audit records decision entries for state-mutating actions.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fentz26/leaddesk/internal/models"
)

// Outcomes recorded with each decision.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// DecisionWriter persists decision records.
type DecisionWriter interface {
	WriteDecision(ctx context.Context, action, actorID, inputsHash, outcome, subjectID, details string) (*models.DecisionRecord, error)
}

// Recorder hashes action inputs and writes them as decision records.
type Recorder struct {
	w DecisionWriter
}

// NewRecorder creates a new Recorder.
func NewRecorder(w DecisionWriter) *Recorder {
	return &Recorder{w: w}
}

// Record writes a decision for action. A failed write is logged and
// returned; callers that already completed the action usually ignore it.
func (r *Recorder) Record(ctx context.Context, action, actorID string, inputs any, outcome, subjectID, details string) (*models.DecisionRecord, error) {
	rec, err := r.w.WriteDecision(ctx, action, actorID, HashInputs(inputs), outcome, subjectID, details)
	if err != nil {
		zap.L().Warn("audit: failed to write decision",
			zap.String("action", action),
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		return nil, err
	}
	return rec, nil
}

// HashInputs returns the hex SHA-256 of the JSON encoding of inputs, so a
// decision can be matched against the request that produced it.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
