package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/ingest"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/llm/openai"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/ocr"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/pipeline"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/repository"
)

func main() {
	invoiceDir := flag.String("invoices", "", "directory holding invoice documents")
	deliveryDir := flag.String("deliveries", "", "directory holding delivery order documents")
	owner := flag.String("owner", "", "owner id recorded on the sessions")
	watch := flag.Bool("watch", false, "keep watching both directories and submit new pairs")
	debounce := flag.Duration("debounce", 2*time.Second, "watch mode: settle time before submitting")
	flag.Parse()

	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *invoiceDir == "" || *deliveryDir == "" {
		fmt.Fprintln(os.Stderr, "usage: comparador-batch -invoices DIR -deliveries DIR [-watch]")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.Pipeline.UploadDir, 0o755); err != nil {
		logger.Error("create upload dir failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	extractor, err := ocr.NewFromConfig(cfg.OCR, logger)
	if err != nil {
		logger.Error("ocr setup failed", "error", err)
		os.Exit(1)
	}
	comparator := openai.NewClient(openai.Config{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		FallbackModel: cfg.LLM.FallbackModel,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
	}, logger)

	sessions := repository.NewSessionRepository(db, logger)
	comparisons := repository.NewComparisonRepository(db, logger)
	store := repository.NewStore(sessions, comparisons)
	manager := pipeline.NewManager(logger, extractor, comparator, store,
		pipeline.WithPairTimeout(cfg.Pipeline.PairTimeout),
	)

	if !*watch {
		if err := runOnce(manager, cfg, *invoiceDir, *deliveryDir, *owner); err != nil {
			logger.Error("batch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	runWatch(ctx, manager, cfg, *invoiceDir, *deliveryDir, *owner, *debounce, logger)
}

func runOnce(manager *pipeline.Manager, cfg *common.Config, invoiceDir, deliveryDir, owner string) error {
	invoicePaths, deliveryPaths, err := ingest.DiscoverPairs(invoiceDir, deliveryDir)
	if err != nil {
		return err
	}
	return submitAndWait(manager, cfg, invoicePaths, deliveryPaths, owner)
}

func submitAndWait(manager *pipeline.Manager, cfg *common.Config, invoicePaths, deliveryPaths []string, owner string) error {
	invoices, err := ingest.Stage(invoicePaths, cfg.Pipeline.UploadDir)
	if err != nil {
		return err
	}
	deliveries, err := ingest.Stage(deliveryPaths, cfg.Pipeline.UploadDir)
	if err != nil {
		discardStaged(invoices)
		return err
	}

	accepted, err := manager.Submit(invoices, deliveries, owner)
	if err != nil {
		discardStaged(invoices)
		discardStaged(deliveries)
		return err
	}
	fmt.Printf("accepted %d pair(s)\n", accepted)

	done := make(chan struct{})
	go func() { manager.Wait(); close(done) }()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			st := manager.Status()
			fmt.Printf("\rocr %3d%%  ai %3d%%  %s", st.OCRProgress, st.AIProgress, st.CurrentAIStage)
		case <-done:
			st := manager.Status()
			fmt.Printf("\rocr %3d%%  ai %3d%%  %s\n", st.OCRProgress, st.AIProgress, st.CurrentAIStage)
			if st.Error != "" {
				fmt.Printf("finished with errors: %s\n", st.Error)
			}
			return nil
		}
	}
}

// discardStaged removes scratch copies the pipeline never took
// ownership of.
func discardStaged(files []pipeline.UploadedFile) {
	for _, f := range files {
		_ = os.Remove(f.Path)
	}
}

// runWatch submits a batch for every settled burst of new documents.
// Files already handed to the pipeline are not resubmitted.
func runWatch(ctx context.Context, manager *pipeline.Manager, cfg *common.Config, invoiceDir, deliveryDir, owner string, debounce time.Duration, logger *slog.Logger) {
	evCh, errCh, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:    []string{invoiceDir, deliveryDir},
		Debounce: debounce,
	}, logger)
	if err != nil {
		logger.Error("watcher start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("watching for document pairs", "invoices", invoiceDir, "deliveries", deliveryDir)

	seen := map[string]struct{}{}
	var pendingInvoices, pendingDeliveries []string

	trySubmit := func() {
		if len(pendingInvoices) == 0 || len(pendingDeliveries) == 0 {
			return
		}
		if err := submitAndWait(manager, cfg, pendingInvoices, pendingDeliveries, owner); err != nil {
			logger.Error("watch batch failed", "error", err)
			return
		}
		pendingInvoices, pendingDeliveries = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			manager.Wait()
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				logger.Warn("watcher error", "error", err)
			}
		case path, ok := <-evCh:
			if !ok {
				manager.Wait()
				return
			}
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			if filepath.Dir(path) == filepath.Clean(invoiceDir) {
				pendingInvoices = append(pendingInvoices, path)
			} else {
				pendingDeliveries = append(pendingDeliveries, path)
			}
			trySubmit()
		}
	}
}
