package pipeline

import (
	"sync"
	"time"
)

// Phase is the stage of an indexing session.
type Phase string

const (
	// PhaseIdle means no session is running.
	PhaseIdle Phase = "idle"
	// PhaseChunking means the document text is being split.
	PhaseChunking Phase = "chunking"
	// PhaseEmbedding means chunk embeddings are being generated.
	PhaseEmbedding Phase = "embedding"
	// PhasePersisting means the chunk set is being written to the store.
	PhasePersisting Phase = "persisting"
	// PhaseCompleted means the session finished successfully.
	PhaseCompleted Phase = "completed"
	// PhaseFailed means the session ended with an error.
	PhaseFailed Phase = "failed"
)

// ProgressSnapshot is an immutable view of indexing progress for a UI
// progress indicator.
type ProgressSnapshot struct {
	SessionID      string  `json:"session_id,omitempty"`
	FileID         string  `json:"file_id,omitempty"`
	Phase          Phase   `json:"phase"`
	Progress       float64 `json:"progress"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// sessionProgress tracks one indexing session. Progress is monotonic
// non-decreasing within the session.
type sessionProgress struct {
	mu sync.RWMutex

	sessionID string
	fileID    string
	phase     Phase
	progress  float64
	errorMsg  string
	startTime time.Time
}

func newSessionProgress(sessionID, fileID string) *sessionProgress {
	return &sessionProgress{
		sessionID: sessionID,
		fileID:    fileID,
		phase:     PhaseChunking,
		startTime: time.Now(),
	}
}

func (s *sessionProgress) setPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// setProgress advances the progress fraction, never moving backwards.
func (s *sessionProgress) setProgress(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p > s.progress {
		s.progress = p
	}
}

func (s *sessionProgress) setCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseCompleted
	s.progress = 1.0
}

func (s *sessionProgress) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFailed
	s.errorMsg = msg
}

func (s *sessionProgress) snapshot() ProgressSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ProgressSnapshot{
		SessionID:      s.sessionID,
		FileID:         s.fileID,
		Phase:          s.phase,
		Progress:       s.progress,
		ElapsedSeconds: int(time.Since(s.startTime).Seconds()),
		ErrorMessage:   s.errorMsg,
	}
}
