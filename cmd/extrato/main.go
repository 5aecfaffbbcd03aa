// Command extrato runs batch field extraction over a dataset manifest:
// a JSON array of {label, extraction_schema, pdf_path} items. Each item
// gets an individual JSON result; the run ends with a consolidated
// report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/extrato-ai/extrato/batch"
	"github.com/extrato-ai/extrato/cache"
	"github.com/extrato-ai/extrato/config"
	"github.com/extrato-ai/extrato/llm"
	"github.com/extrato-ai/extrato/parser"
	"github.com/extrato-ai/extrato/pipeline"
	"github.com/extrato-ai/extrato/schema"
	"github.com/extrato-ai/extrato/template"
	"github.com/extrato-ai/extrato/validator"
)

type datasetItem struct {
	Label            string        `json:"label"`
	ExtractionSchema schema.Schema `json:"extraction_schema"`
	PDFPath          string        `json:"pdf_path"`
}

type itemReport struct {
	PDFPath  string          `json:"pdf_path"`
	Label    string          `json:"label"`
	Success  bool            `json:"success"`
	Data     map[string]any  `json:"data"`
	Metadata schema.Metadata `json:"metadata"`
	Error    string          `json:"error,omitempty"`
}

type consolidatedReport struct {
	Stats   *batch.Stats `json:"stats"`
	Results []itemReport `json:"results"`
}

func main() {
	var (
		datasetPath = flag.String("dataset", "dataset.json", "dataset manifest path")
		pdfDir      = flag.String("pdf-dir", ".", "directory holding the manifest's PDFs")
		outputDir   = flag.String("output-dir", "output", "directory for result JSON files")
		configPath  = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(*datasetPath, *pdfDir, *outputDir, *configPath, logger); err != nil {
		logger.Error("batch run failed", "error", err)
		os.Exit(1)
	}
}

func run(datasetPath, pdfDir, outputDir, configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	items, err := loadDataset(datasetPath)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded", "items", len(items), "path", datasetPath)

	p, store, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reqs := make([]*schema.ExtractionRequest, len(items))
	for i, item := range items {
		pdfBytes, err := os.ReadFile(filepath.Join(pdfDir, item.PDFPath))
		if err != nil {
			logger.Warn("pdf not readable, item will fail", "pdf_path", item.PDFPath, "error", err)
		}
		reqs[i] = &schema.ExtractionRequest{
			PDFBytes: pdfBytes,
			Label:    item.Label,
			Schema:   item.ExtractionSchema,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := batch.NewScheduler(p,
		batch.WithMaxWorkers(cfg.Batch.MaxWorkers),
		batch.WithLogger(logger))

	reports := make([]itemReport, 0, len(items))
	for ev := range scheduler.Run(ctx, reqs) {
		switch ev.Type {
		case batch.EventResult:
			report := itemReport{
				PDFPath:  items[ev.FileIndex].PDFPath,
				Label:    ev.Label,
				Success:  ev.Result.Success,
				Data:     ev.Result.Data,
				Metadata: ev.Result.Metadata,
				Error:    ev.Result.Error,
			}
			reports = append(reports, report)
			if err := writeIndividual(outputDir, report); err != nil {
				logger.Error("failed to write individual result", "pdf_path", report.PDFPath, "error", err)
			}
			logger.Info("item finished",
				"pdf_path", report.PDFPath, "label", report.Label,
				"success", report.Success, "method", report.Metadata.Method,
				"time_s", fmt.Sprintf("%.2f", report.Metadata.TimeSeconds))
		case batch.EventComplete:
			if err := writeConsolidated(outputDir, ev.Stats, reports); err != nil {
				return err
			}
			logger.Info("batch finished",
				"total", ev.Stats.Total,
				"successful", ev.Stats.Successful,
				"failed", ev.Stats.Failed,
				"seconds", fmt.Sprintf("%.1f", ev.Stats.ProcessingTimeSeconds))
		}
	}
	return nil
}

func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, *template.Store, error) {
	c, err := cache.New(
		cache.WithL1Capacity(cfg.Cache.L1Capacity),
		cache.WithDir(cfg.Cache.L2Dir),
		cache.WithMaxDiskBytes(cfg.Cache.L2MaxBytes),
		cache.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	store, err := template.OpenStore(cfg.Template.DBPath, template.WithStoreLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	llmOpts := []llm.OpenAIOption{
		llm.WithTimeout(cfg.LLMTimeout()),
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
		llm.WithLogger(logger),
	}
	if cfg.LLM.Model != "" {
		llmOpts = append(llmOpts, llm.WithModel(cfg.LLM.Model))
	}

	p := pipeline.New(
		parser.NewPDFParser(),
		llm.NewOpenAIExtractor(llmOpts...),
		c,
		store,
		pipeline.WithMatcher(template.NewMatcher(
			template.WithSimilarityThreshold(cfg.Template.SimilarityThreshold),
			template.WithMinSamples(cfg.Template.MinSamples))),
		pipeline.WithValidator(validator.New()),
		pipeline.WithConfidenceThreshold(cfg.Template.ConfidenceThreshold),
		pipeline.WithParserTimeout(cfg.ParserTimeout()),
		pipeline.WithLogger(logger))
	return p, store, nil
}

func loadDataset(path string) ([]datasetItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var items []datasetItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	for i, item := range items {
		if item.Label == "" || item.PDFPath == "" || len(item.ExtractionSchema) == 0 {
			return nil, fmt.Errorf("dataset item %d is missing label, extraction_schema or pdf_path", i)
		}
	}
	return items, nil
}

func writeIndividual(outputDir string, report itemReport) error {
	dir := filepath.Join(outputDir, "individual")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(report.PDFPath), filepath.Ext(report.PDFPath))
	return writeJSON(filepath.Join(dir, base+".json"), report)
}

func writeConsolidated(outputDir string, stats *batch.Stats, reports []itemReport) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("consolidated_%s.json", time.Now().Format("20060102_150405"))
	return writeJSON(filepath.Join(outputDir, name), consolidatedReport{Stats: stats, Results: reports})
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
