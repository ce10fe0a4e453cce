// Package pipeline drives uploaded (invoice, delivery order) pairs through
// text extraction, AI comparison and persistence, one pair at a time,
// while publishing a process-wide progress status.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/llm"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/ocr"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/quality"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/textutil"
)

// UploadedFile is one temporary file handed to Submit. Path points at a
// scratch copy owned by the pipeline; it is removed on every exit path of
// the owning pair.
type UploadedFile struct {
	Name string
	Path string
	Size int64
}

// ResultStore is the persistence port. Session rows are created before
// extraction begins and finalized at pair end; failed pairs keep their
// rows with status=error.
type ResultStore interface {
	CreateSession(ctx context.Context, invoiceName, deliveryName, ownerID string) (uuid.UUID, error)
	FailSession(ctx context.Context, id uuid.UUID, message string) error
	SaveComparison(ctx context.Context, sessionID uuid.UUID, ownerID string, res *llm.Result) (uuid.UUID, error)
}

// Manager owns the batch state machine: at most one batch at a time,
// pairs processed strictly sequentially, cooperative cancellation at pair
// boundaries.
type Manager struct {
	logger     *slog.Logger
	extractor  ocr.Extractor
	comparator llm.Comparator
	store      ResultStore

	gateOpts    quality.Options
	pairTimeout time.Duration

	submitMu sync.Mutex // serializes Submit's check-then-start
	tracker  *statusTracker
	wg       sync.WaitGroup // tracks the in-flight batch goroutine
}

// Option tunes a Manager.
type Option func(*Manager)

// WithPairTimeout bounds one pair's OCR + comparison + persistence round
// trip. The backends can be slow; a ceiling keeps a wedged call from
// pinning the batch forever.
func WithPairTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pairTimeout = d
		}
	}
}

// WithQualityOptions tunes the document quality gate.
func WithQualityOptions(opts quality.Options) Option {
	return func(m *Manager) { m.gateOpts = opts }
}

func NewManager(logger *slog.Logger, extractor ocr.Extractor, comparator llm.Comparator, store ResultStore, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:      logger,
		extractor:   extractor,
		comparator:  comparator,
		store:       store,
		gateOpts:    quality.DefaultOptions(),
		pairTimeout: 5 * time.Minute,
		tracker:     newStatusTracker(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Status returns a snapshot safe for sub-second polling.
func (m *Manager) Status() Status {
	return m.tracker.snapshot()
}

// Submit accepts a new batch. Files are paired positionally; surplus
// files beyond the shorter list still appear on the status board but are
// never processed. Returns the accepted pair count. Fails with
// common.ErrBatchInProgress while a batch is running; nothing is queued.
func (m *Manager) Submit(invoices, deliveries []UploadedFile, ownerID string) (int, error) {
	if len(invoices) == 0 || len(deliveries) == 0 {
		return 0, common.NewAppError("SUBMIT", "at least one invoice and one delivery order are required", common.ErrInvalidInput)
	}

	m.submitMu.Lock()
	defer m.submitMu.Unlock()

	if m.tracker.processing() {
		return 0, common.ErrBatchInProgress
	}

	pairCount := len(invoices)
	if len(deliveries) < pairCount {
		pairCount = len(deliveries)
	}

	// Status board lists every uploaded file in upload order: invoices
	// first, then delivery orders.
	entries := make([]FileProgressEntry, 0, len(invoices)+len(deliveries))
	for _, f := range invoices {
		entries = append(entries, FileProgressEntry{Name: f.Name, Role: constants.RoleInvoice, SizeBytes: f.Size, Status: constants.FileStatusPending})
	}
	for _, f := range deliveries {
		entries = append(entries, FileProgressEntry{Name: f.Name, Role: constants.RoleDeliveryOrder, SizeBytes: f.Size, Status: constants.FileStatusPending})
	}
	gen := m.tracker.reset(entries)

	m.logger.Info("batch accepted",
		"pairs", pairCount,
		"invoices", len(invoices),
		"deliveries", len(deliveries),
		"owner", ownerID,
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(gen, invoices, deliveries, pairCount, ownerID)
	}()

	return pairCount, nil
}

// Cancel requests cooperative cancellation: the flag flips immediately,
// the loop observes it at the next pair boundary. An in-flight OCR or
// comparison call for the current pair is not interrupted. Fails with
// common.ErrNoActiveBatch when idle.
func (m *Manager) Cancel() error {
	if !m.tracker.cancel("processing cancelled by user") {
		return common.ErrNoActiveBatch
	}
	m.logger.Info("batch cancellation requested")
	return nil
}

// Wait blocks until the in-flight batch goroutine finishes. Test and
// shutdown helper.
func (m *Manager) Wait() {
	m.wg.Wait()
}

type pairFiles struct {
	invoice  UploadedFile
	delivery UploadedFile
	// indices into the status board
	invoiceIdx  int
	deliveryIdx int
}

func (m *Manager) run(gen uint64, invoices, deliveries []UploadedFile, pairCount int, ownerID string) {
	defer func() {
		if r := recover(); r != nil {
			// Fatal batch error: outside any per-pair containment.
			m.logger.Error("batch panicked", "panic", r)
			m.tracker.setError(gen, fmt.Sprintf("fatal batch error: %v", r))
			m.tracker.finish(gen, "")
			m.cleanupAll(invoices, deliveries)
		}
	}()

	for i := 0; i < pairCount; i++ {
		if !m.tracker.active(gen) {
			m.logger.Info("batch cancelled, stopping before pair", "pair", i+1, "of", pairCount)
			break
		}
		pf := pairFiles{
			invoice:     invoices[i],
			delivery:    deliveries[i],
			invoiceIdx:  i,
			deliveryIdx: len(invoices) + i,
		}
		m.processPair(gen, i, pairCount, pf, ownerID)
	}

	m.tracker.finish(gen, fmt.Sprintf("Completed %d pairs", pairCount))
	m.cleanupAll(invoices, deliveries)
	m.logger.Info("batch finished", "pairs", pairCount, "cancelled", m.tracker.wasCancelled(gen))
}

// processPair runs one pair end to end. All failures are contained here:
// the pair's session ends up with status=error and the loop moves on.
func (m *Manager) processPair(gen uint64, i, pairCount int, pf pairFiles, ownerID string) {
	log := m.logger.With("pair", i+1, "of", pairCount, "invoice", pf.invoice.Name, "delivery", pf.delivery.Name)
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), m.pairTimeout)
	defer cancel()

	sessionID, err := m.store.CreateSession(ctx, pf.invoice.Name, pf.delivery.Name, ownerID)
	if err != nil {
		log.Error("pipeline.pair.session_create_failed", "err", err)
		m.failPair(ctx, gen, i, pf, uuid.Nil, fmt.Sprintf("create session: %v", err))
		return
	}
	log = log.With("session_id", sessionID)

	m.tracker.setFileStatus(gen, pf.invoiceIdx, constants.FileStatusProcessing)
	m.tracker.setFileStatus(gen, pf.deliveryIdx, constants.FileStatusProcessing)

	// OCR: invoice side.
	m.tracker.setCurrentOCRFile(gen, pf.invoice.Name)
	invoiceRes, err := m.extractor.Extract(ctx, pf.invoice.Path)
	if err != nil {
		log.Error("pipeline.pair.ocr_failed", "file", pf.invoice.Name, "err", err)
		m.failPair(ctx, gen, i, pf, sessionID, err.Error())
		return
	}
	m.tracker.setOCRProgress(gen, (2*i+1)*100/(2*pairCount))
	m.tracker.setFileStatus(gen, pf.invoiceIdx, constants.FileStatusCompleted)

	// OCR: delivery side.
	m.tracker.setCurrentOCRFile(gen, pf.delivery.Name)
	deliveryRes, err := m.extractor.Extract(ctx, pf.delivery.Path)
	if err != nil {
		log.Error("pipeline.pair.ocr_failed", "file", pf.delivery.Name, "err", err)
		m.failPair(ctx, gen, i, pf, sessionID, err.Error())
		return
	}
	m.tracker.setOCRProgress(gen, (2*i+2)*100/(2*pairCount))
	m.tracker.setFileStatus(gen, pf.deliveryIdx, constants.FileStatusCompleted)
	m.tracker.setCurrentOCRFile(gen, "")

	invoiceText := textutil.CleanOCRText(invoiceRes.Text)
	deliveryText := textutil.CleanOCRText(deliveryRes.Text)

	// Quality signal only; a low score is logged, not rejected.
	if a := quality.Assess(invoiceText, m.gateOpts); !a.IsProductDocument {
		log.Warn("pipeline.pair.low_quality_text", "file", pf.invoice.Name, "score", a.Score, "reasons", a.Reasons)
	}
	if a := quality.Assess(deliveryText, m.gateOpts); !a.IsProductDocument {
		log.Warn("pipeline.pair.low_quality_text", "file", pf.delivery.Name, "score", a.Score, "reasons", a.Reasons)
	}

	// AI comparison.
	m.tracker.setAIStage(gen, fmt.Sprintf("Comparing pair %d of %d", i+1, pairCount))
	m.tracker.setAIProgress(gen, i*100/pairCount)

	res, err := m.comparator.Compare(ctx, llm.Request{
		InvoiceText:  invoiceText,
		DeliveryText: deliveryText,
		InvoiceName:  pf.invoice.Name,
		DeliveryName: pf.delivery.Name,
	})
	if err != nil {
		log.Error("pipeline.pair.compare_failed", "err", err)
		m.failPair(ctx, gen, i, pf, sessionID, err.Error())
		return
	}
	m.tracker.setAIProgress(gen, (i+1)*100/pairCount)

	// Persist result; a store failure is still a pair-level failure.
	comparisonID, err := m.store.SaveComparison(ctx, sessionID, ownerID, res)
	if err != nil {
		log.Error("pipeline.pair.save_failed", "err", err)
		m.failPair(ctx, gen, i, pf, sessionID, fmt.Sprintf("save comparison: %v", err))
		return
	}

	m.removeTempFile(pf.invoice.Path)
	m.removeTempFile(pf.delivery.Path)

	log.Info("pipeline.pair.ok",
		"comparison_id", comparisonID,
		"matches", res.Summary.Matches,
		"warnings", res.Summary.Warnings,
		"errors", res.Summary.Errors,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// failPair contains a pair-level failure: session marked error, both file
// entries marked error, shared status error set, temp files removed. The
// batch continues with the next pair.
func (m *Manager) failPair(ctx context.Context, gen uint64, i int, pf pairFiles, sessionID uuid.UUID, message string) {
	if sessionID != uuid.Nil {
		if err := m.store.FailSession(ctx, sessionID, message); err != nil {
			m.logger.Error("pipeline.pair.fail_session_failed", "session_id", sessionID, "err", err)
		}
	}
	m.tracker.setFileStatus(gen, pf.invoiceIdx, constants.FileStatusError)
	m.tracker.setFileStatus(gen, pf.deliveryIdx, constants.FileStatusError)
	m.tracker.setError(gen, fmt.Sprintf("pair %d (%s / %s): %s", i+1, pf.invoice.Name, pf.delivery.Name, message))
	m.removeTempFile(pf.invoice.Path)
	m.removeTempFile(pf.delivery.Path)
}

// cleanupAll removes whatever temp files are still on disk, including
// surplus uploads that were never paired. Failures are logged, never
// escalated.
func (m *Manager) cleanupAll(invoices, deliveries []UploadedFile) {
	for _, f := range invoices {
		m.removeTempFile(f.Path)
	}
	for _, f := range deliveries {
		m.removeTempFile(f.Path)
	}
}

func (m *Manager) removeTempFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("temp file cleanup failed", "path", path, "err", err)
	}
}
