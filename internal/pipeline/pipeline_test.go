package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/llm"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/ocr"
)

type fakeExtractor struct {
	mu      sync.Mutex
	calls   []string
	failOn  map[string]error // keyed by file path
	started chan struct{}    // closed-once signal that the first call began
	release chan struct{}    // when non-nil, every call blocks until closed
	once    sync.Once
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (ocr.ExtractionResult, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if err, ok := f.failOn[path]; ok {
		return ocr.ExtractionResult{}, err
	}
	return ocr.ExtractionResult{Text: "A01 Coca Cola 600ml $18.50", Method: "fake"}, nil
}

type fakeComparator struct {
	mu           sync.Mutex
	requests     []llm.Request
	ocrSnapshots []int // manager OCR progress observed at each call
	manager      *Manager
	err          error
}

func (f *fakeComparator) Compare(_ context.Context, req llm.Request) (*llm.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	if f.manager != nil {
		f.ocrSnapshots = append(f.ocrSnapshots, f.manager.Status().OCRProgress)
	}
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{
		Items:   []llm.Item{{ProductName: "Coca Cola 600ml", InvoiceValue: "12", DeliveryValue: "12", Status: "match"}},
		Summary: llm.Summary{Matches: 1},
	}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	created  []uuid.UUID
	failed   map[uuid.UUID]string
	saved    []uuid.UUID
	createFn func() (uuid.UUID, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{failed: map[uuid.UUID]string{}}
}

func (f *fakeStore) CreateSession(context.Context, string, string, string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn()
	}
	id := uuid.New()
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeStore) FailSession(_ context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = message
	return nil
}

func (f *fakeStore) SaveComparison(_ context.Context, sessionID uuid.UUID, _ string, _ *llm.Result) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, sessionID)
	return uuid.New(), nil
}

// tempUpload creates a real scratch file so cleanup can be observed.
func tempUpload(t *testing.T, dir, name string) UploadedFile {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("scanned bytes"), 0o644))
	return UploadedFile{Name: name, Path: path, Size: 13}
}

func pairBatch(t *testing.T, dir string, n int) (invoices, deliveries []UploadedFile) {
	t.Helper()
	for i := 0; i < n; i++ {
		invoices = append(invoices, tempUpload(t, dir, fmt.Sprintf("fac-%03d.pdf", i+1)))
		deliveries = append(deliveries, tempUpload(t, dir, fmt.Sprintf("rem-%03d.pdf", i+1)))
	}
	return invoices, deliveries
}

func TestSubmitRejectsEmptyLists(t *testing.T) {
	m := NewManager(nil, &fakeExtractor{}, &fakeComparator{}, newFakeStore())

	_, err := m.Submit(nil, nil, "owner-1")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = m.Submit([]UploadedFile{{Name: "fac.pdf"}}, nil, "owner-1")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestBatchHappyPath(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 2)

	store := newFakeStore()
	cmp := &fakeComparator{}
	m := NewManager(nil, &fakeExtractor{}, cmp, store)
	cmp.manager = m

	accepted, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)

	m.Wait()

	st := m.Status()
	assert.False(t, st.IsProcessing)
	assert.Empty(t, st.Error)
	assert.Equal(t, 100, st.OCRProgress)
	assert.Equal(t, 100, st.AIProgress)
	assert.Equal(t, "Completed 2 pairs", st.CurrentAIStage)
	for _, f := range st.Files {
		assert.Equal(t, constants.FileStatusCompleted, f.Status)
	}

	assert.Len(t, store.created, 2)
	assert.Equal(t, store.created, store.saved)
	assert.Empty(t, store.failed)

	// OCR runs both sides of a pair before its comparison: 50% after
	// pair one, 100% after pair two.
	assert.Equal(t, []int{50, 100}, cmp.ocrSnapshots)

	// Temp files are gone, the pair's and the batch sweep's.
	for _, f := range append(invoices, deliveries...) {
		_, err := os.Stat(f.Path)
		assert.True(t, os.IsNotExist(err), "expected %s to be removed", f.Path)
	}
}

func TestSecondSubmitRejectedWhileProcessing(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 1)

	ext := &fakeExtractor{started: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(nil, ext, &fakeComparator{}, newFakeStore())

	_, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)
	<-ext.started

	before := m.Status()
	_, err = m.Submit(invoices, deliveries, "owner-2")
	assert.ErrorIs(t, err, common.ErrBatchInProgress)

	// The rejected submit must not have touched the live board.
	after := m.Status()
	assert.Equal(t, before.Files, after.Files)
	assert.True(t, after.IsProcessing)

	close(ext.release)
	m.Wait()
}

func TestPairFailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 2)

	boom := errors.New("ocr backend unreachable")
	ext := &fakeExtractor{failOn: map[string]error{invoices[0].Path: boom}}
	store := newFakeStore()
	m := NewManager(nil, ext, &fakeComparator{}, store)

	_, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)
	m.Wait()

	st := m.Status()
	assert.False(t, st.IsProcessing)
	assert.Contains(t, st.Error, "pair 1")
	assert.Contains(t, st.Error, "fac-001.pdf")

	// Board layout is invoices first, then deliveries.
	require.Len(t, st.Files, 4)
	assert.Equal(t, constants.FileStatusError, st.Files[0].Status)
	assert.Equal(t, constants.FileStatusError, st.Files[2].Status)
	assert.Equal(t, constants.FileStatusCompleted, st.Files[1].Status)
	assert.Equal(t, constants.FileStatusCompleted, st.Files[3].Status)

	// Pair one keeps its session with an error; pair two completed.
	require.Len(t, store.created, 2)
	assert.Contains(t, store.failed, store.created[0])
	assert.Equal(t, []uuid.UUID{store.created[1]}, store.saved)

	// A failed batch does not get the completion label.
	assert.NotEqual(t, "Completed 2 pairs", st.CurrentAIStage)

	for _, f := range append(invoices, deliveries...) {
		_, serr := os.Stat(f.Path)
		assert.True(t, os.IsNotExist(serr))
	}
}

func TestSessionCreateFailureContainedToPair(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 1)

	store := newFakeStore()
	store.createFn = func() (uuid.UUID, error) { return uuid.Nil, errors.New("db down") }
	m := NewManager(nil, &fakeExtractor{}, &fakeComparator{}, store)

	_, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)
	m.Wait()

	st := m.Status()
	assert.Contains(t, st.Error, "create session")
	assert.Empty(t, store.failed, "no session row exists to mark failed")
}

func TestSurplusFilesStayPending(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 2)
	surplus := tempUpload(t, dir, "fac-999.pdf")
	invoices = append(invoices, surplus)

	store := newFakeStore()
	m := NewManager(nil, &fakeExtractor{}, &fakeComparator{}, store)

	accepted, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
	m.Wait()

	st := m.Status()
	require.Len(t, st.Files, 5)
	assert.Equal(t, constants.FileStatusPending, st.Files[2].Status, "unpaired upload is never processed")
	assert.Len(t, store.created, 2)

	// The batch sweep still removes the surplus scratch copy.
	_, serr := os.Stat(surplus.Path)
	assert.True(t, os.IsNotExist(serr))
}

func TestCancelStopsAtPairBoundary(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 3)

	ext := &fakeExtractor{started: make(chan struct{}), release: make(chan struct{})}
	store := newFakeStore()
	m := NewManager(nil, ext, &fakeComparator{}, store)

	_, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)

	<-ext.started
	require.NoError(t, m.Cancel())
	close(ext.release)
	m.Wait()

	// The in-flight pair runs to completion; later pairs never start.
	assert.Len(t, store.created, 1)
	assert.Len(t, store.saved, 1)

	st := m.Status()
	assert.False(t, st.IsProcessing)
	assert.Equal(t, "processing cancelled by user", st.Error)
	assert.Equal(t, 0, st.OCRProgress)
	assert.Equal(t, 0, st.AIProgress)

	for _, f := range append(invoices, deliveries...) {
		_, serr := os.Stat(f.Path)
		assert.True(t, os.IsNotExist(serr))
	}
}

func TestCancelThenResubmitDoesNotReviveOldBatch(t *testing.T) {
	dir := t.TempDir()
	invoicesA, deliveriesA := pairBatch(t, dir, 3)

	ext := &fakeExtractor{started: make(chan struct{}), release: make(chan struct{})}
	store := newFakeStore()
	cmp := &fakeComparator{}
	m := NewManager(nil, ext, cmp, store)

	_, err := m.Submit(invoicesA, deliveriesA, "owner-1")
	require.NoError(t, err)

	// Cancel while pair one's extraction is in flight, then hand the
	// manager a new batch before the old goroutine has exited.
	<-ext.started
	require.NoError(t, m.Cancel())

	invoiceB := tempUpload(t, dir, "fac-B01.pdf")
	deliveryB := tempUpload(t, dir, "rem-B01.pdf")
	accepted, err := m.Submit([]UploadedFile{invoiceB}, []UploadedFile{deliveryB}, "owner-2")
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	close(ext.release)
	m.Wait()

	// The old batch finishes its in-flight pair and nothing more; the
	// remainder pairs never start.
	ext.mu.Lock()
	calls := append([]string(nil), ext.calls...)
	ext.mu.Unlock()
	assert.NotContains(t, calls, invoicesA[1].Path)
	assert.NotContains(t, calls, invoicesA[2].Path)
	assert.Contains(t, calls, invoiceB.Path, "the new batch must actually run")

	// One session for the old in-flight pair, one for the new batch.
	assert.Len(t, store.created, 2)
	assert.Len(t, store.saved, 2)

	// The board belongs to the new batch and shows its clean completion.
	st := m.Status()
	assert.False(t, st.IsProcessing)
	assert.Empty(t, st.Error)
	assert.Equal(t, 100, st.OCRProgress)
	assert.Equal(t, 100, st.AIProgress)
	assert.Equal(t, "Completed 1 pairs", st.CurrentAIStage)
	require.Len(t, st.Files, 2)
	for _, f := range st.Files {
		assert.Equal(t, constants.FileStatusCompleted, f.Status)
	}

	for _, f := range append(invoicesA, deliveriesA...) {
		_, serr := os.Stat(f.Path)
		assert.True(t, os.IsNotExist(serr), "old batch sweep still removes %s", f.Path)
	}
}

func TestCancelWhenIdle(t *testing.T) {
	m := NewManager(nil, &fakeExtractor{}, &fakeComparator{}, newFakeStore())
	assert.ErrorIs(t, m.Cancel(), common.ErrNoActiveBatch)
}

func TestNewBatchClearsPreviousError(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 1)

	boom := errors.New("ocr backend unreachable")
	ext := &fakeExtractor{failOn: map[string]error{invoices[0].Path: boom}}
	m := NewManager(nil, ext, &fakeComparator{}, newFakeStore())

	_, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)
	m.Wait()
	require.NotEmpty(t, m.Status().Error)

	invoices2, deliveries2 := pairBatch(t, dir, 1)
	ext.failOn = nil
	_, err = m.Submit(invoices2, deliveries2, "owner-1")
	require.NoError(t, err)
	m.Wait()

	st := m.Status()
	assert.Empty(t, st.Error)
	assert.Equal(t, 100, st.OCRProgress)
}

func TestComparisonErrorFailsPair(t *testing.T) {
	dir := t.TempDir()
	invoices, deliveries := pairBatch(t, dir, 1)

	store := newFakeStore()
	cmp := &fakeComparator{err: llm.NewComparisonError("all comparison backends exhausted", errors.New("503"))}
	m := NewManager(nil, &fakeExtractor{}, cmp, store, WithPairTimeout(time.Minute))

	_, err := m.Submit(invoices, deliveries, "owner-1")
	require.NoError(t, err)
	m.Wait()

	require.Len(t, store.created, 1)
	assert.Contains(t, store.failed, store.created[0])
	assert.Empty(t, store.saved)
	assert.Contains(t, m.Status().Error, "comparison failed")
}
