// Package session drives the per-session conversation lifecycle: an
// explicit state machine over document upload, ingestion and answering,
// plus idle expiry of session state.
package session

import (
	"fmt"

	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

// SessionEvent is an input to the conversation state machine
type SessionEvent string

const (
	EventUpload         SessionEvent = "upload"
	EventIngestStart    SessionEvent = "ingest_start"
	EventIngestComplete SessionEvent = "ingest_complete"
	EventIngestFail     SessionEvent = "ingest_fail"
	EventAnswerStart    SessionEvent = "answer_start"
	EventAnswerComplete SessionEvent = "answer_complete"
	EventAnswerFail     SessionEvent = "answer_fail"
)

// transitions is the full state x event table. Any pair not listed is a
// conflict. Upload is valid in every phase and replaces the prior
// document reference, which is also the recovery path for sessions left
// in a transient phase by a crash; live turns are serialized by the
// manager's busy latch. A failed answer returns the session to ready so
// the document stays usable.
var transitions = map[models.SessionPhase]map[SessionEvent]models.SessionPhase{
	models.PhaseIdle: {
		EventUpload: models.PhaseDocumentUploaded,
	},
	models.PhaseDocumentUploaded: {
		EventUpload:      models.PhaseDocumentUploaded,
		EventIngestStart: models.PhaseProcessing,
	},
	models.PhaseProcessing: {
		EventUpload:         models.PhaseDocumentUploaded,
		EventIngestComplete: models.PhaseReady,
		EventIngestFail:     models.PhaseFailed,
	},
	models.PhaseReady: {
		EventUpload:      models.PhaseDocumentUploaded,
		EventAnswerStart: models.PhaseAnswering,
	},
	models.PhaseAnswering: {
		EventUpload:         models.PhaseDocumentUploaded,
		EventAnswerComplete: models.PhaseReady,
		EventAnswerFail:     models.PhaseReady,
	},
	models.PhaseFailed: {
		EventUpload: models.PhaseDocumentUploaded,
	},
}

// Transition resolves the next phase for an event. Invalid pairs return
// ErrStateConflict and leave the caller's state untouched.
func Transition(current models.SessionPhase, event SessionEvent) (models.SessionPhase, error) {
	if next, ok := transitions[current][event]; ok {
		return next, nil
	}
	return current, fmt.Errorf("event %s not valid in phase %s: %w", event, current, interfaces.ErrStateConflict)
}

// CanTransition reports whether an event is valid in the given phase
func CanTransition(current models.SessionPhase, event SessionEvent) bool {
	_, ok := transitions[current][event]
	return ok
}
