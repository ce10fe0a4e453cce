package pipeline

import (
	"sync"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
)

// FileProgressEntry tracks one uploaded file on the status board. Entries
// are created when a batch starts and only mutated by the pipeline loop;
// a new batch replaces the whole list.
type FileProgressEntry struct {
	Name      string               `json:"name"`
	Role      constants.FileRole   `json:"role"`
	SizeBytes int64                `json:"sizeBytes"`
	Status    constants.FileStatus `json:"status"`
}

// Status is a polling-friendly snapshot of the batch in flight. Readers
// always get a copy; only the pipeline loop writes.
type Status struct {
	OCRProgress    int                 `json:"ocrProgress"`
	AIProgress     int                 `json:"aiProgress"`
	CurrentOCRFile string              `json:"currentOcrFile,omitempty"`
	CurrentAIStage string              `json:"currentAiStage,omitempty"`
	Files          []FileProgressEntry `json:"files"`
	IsProcessing   bool                `json:"isProcessing"`
	Error          string              `json:"error,omitempty"`
}

// statusTracker serializes all mutations of the shared status. Each batch
// gets a generation token from reset; writes carrying a stale generation
// are dropped, so a goroutine from a cancelled batch that is still
// finishing its pair can never touch the state of its successor.
type statusTracker struct {
	mu        sync.Mutex
	s         Status
	gen       uint64
	cancelled bool
}

func newStatusTracker() *statusTracker {
	return &statusTracker{}
}

// reset installs a fresh status for a new batch: isProcessing=true, all
// file entries pending, previous error cleared. Returns the new batch's
// generation token; all writes for that batch must carry it.
func (t *statusTracker) reset(files []FileProgressEntry) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = Status{
		Files:        files,
		IsProcessing: true,
	}
	t.cancelled = false
	t.gen++
	return t.gen
}

func (t *statusTracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.s
	out.Files = make([]FileProgressEntry, len(t.s.Files))
	copy(out.Files, t.s.Files)
	return out
}

func (t *statusTracker) processing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.IsProcessing
}

// active reports whether the batch identified by gen should keep running.
// A superseded generation is never active, whatever the current flags say.
func (t *statusTracker) active(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen && t.s.IsProcessing
}

// cancel flips the flag the loop polls at pair boundaries. Returns false
// when no batch is running.
func (t *statusTracker) cancel(message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.s.IsProcessing {
		return false
	}
	t.s.IsProcessing = false
	t.s.OCRProgress = 0
	t.s.AIProgress = 0
	t.s.CurrentOCRFile = ""
	t.s.CurrentAIStage = ""
	t.s.Error = message
	t.cancelled = true
	return true
}

// finish closes out the batch. A clean run (no error, not cancelled) is
// forced to 100/100 with a completion label.
func (t *statusTracker) finish(gen uint64, completionLabel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.s.IsProcessing = false
	t.s.CurrentOCRFile = ""
	if t.cancelled {
		return
	}
	if t.s.Error == "" {
		t.s.OCRProgress = 100
		t.s.AIProgress = 100
		t.s.CurrentAIStage = completionLabel
	}
}

func (t *statusTracker) setOCRProgress(gen uint64, pct int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.cancelled {
		return
	}
	t.s.OCRProgress = pct
}

func (t *statusTracker) setAIProgress(gen uint64, pct int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.cancelled {
		return
	}
	t.s.AIProgress = pct
}

func (t *statusTracker) setCurrentOCRFile(gen uint64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.s.CurrentOCRFile = name
}

func (t *statusTracker) setAIStage(gen uint64, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.s.CurrentAIStage = label
}

func (t *statusTracker) setFileStatus(gen uint64, idx int, status constants.FileStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	if idx >= 0 && idx < len(t.s.Files) {
		t.s.Files[idx].Status = status
	}
}

func (t *statusTracker) setError(gen uint64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.s.Error = message
}

// wasCancelled reports whether the batch identified by gen was stopped
// early. A superseded generation was, per the invariant, cancelled first.
func (t *statusTracker) wasCancelled(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen != t.gen || t.cancelled
}
