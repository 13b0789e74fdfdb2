package application

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

const (
	defaultBatchSize = 100
	defaultSourceTag = "fasten"

	// FHIR bundles can carry very large single resources on one line.
	maxResourceLineBytes = 16 * 1024 * 1024
)

// TransformPipelineConfig tunes the streaming transform.
type TransformPipelineConfig struct {
	// BatchSize bounds the decode working set. Batch boundaries carry no
	// semantic meaning and never affect output order or content.
	BatchSize int

	// SourceTag is stamped on every normalized record.
	SourceTag string
}

// TransformPipeline streams a bulk-export payload, parses each
// newline-delimited FHIR resource, and maps it 1:1 into a NormalizedRecord.
// Commit is all-or-nothing: a transport failure mid-stream makes no visible
// change, while an unparseable line is skipped and logged.
type TransformPipeline struct {
	downloader ports.Downloader
	records    ports.RecordStore
	cache      ports.RecordCache
	notifier   ports.IngestNotifier
	cfg        TransformPipelineConfig
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewTransformPipeline creates a pipeline. notifier may be nil.
func NewTransformPipeline(
	downloader ports.Downloader,
	records ports.RecordStore,
	cache ports.RecordCache,
	notifier ports.IngestNotifier,
	cfg TransformPipelineConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *TransformPipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.SourceTag == "" {
		cfg.SourceTag = defaultSourceTag
	}
	return &TransformPipeline{
		downloader: downloader,
		records:    records,
		cache:      cache,
		notifier:   notifier,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
	}
}

// Process downloads and transforms one export payload, committing the
// produced records to the user's collection and invalidating aggregate
// caches. It returns the number of records committed.
func (p *TransformPipeline) Process(ctx context.Context, connectionID, userID, downloadRef string) (int, error) {
	stream, err := p.downloader.Download(ctx, downloadRef)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch export payload: %w", err)
	}
	defer stream.Close()

	ingestedAt := time.Now().UTC()
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResourceLineBytes)

	staged := make([]domain.NormalizedRecord, 0, p.cfg.BatchSize)
	batch := make([]domain.NormalizedRecord, 0, p.cfg.BatchSize)
	skipped := 0

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		record, err := p.normalize(connectionID, userID, line, ingestedAt)
		if err != nil {
			skipped++
			p.metrics.ResourceParseFailures.Inc()
			p.logger.Warn().
				Err(err).
				Str("connectionId", connectionID).
				Msg("Skipping unparseable resource line")
			continue
		}

		batch = append(batch, record)
		if len(batch) >= p.cfg.BatchSize {
			staged = append(staged, batch...)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		// Mid-stream transport failure aborts the whole operation; nothing
		// staged becomes visible.
		return 0, fmt.Errorf("failed to stream export payload: %w", err)
	}
	staged = append(staged, batch...)

	if len(staged) == 0 {
		p.logger.Info().
			Str("connectionId", connectionID).
			Int("skipped", skipped).
			Msg("Export payload produced no records")
		return 0, nil
	}

	if err := p.records.AppendRecords(ctx, userID, staged); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	if err := p.cache.Clear(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to invalidate record cache")
	}

	p.metrics.RecordsIngested.Add(float64(len(staged)))
	if p.notifier != nil {
		p.notifier.NotifyIngest(domain.IngestNotice{
			UserID:       userID,
			ConnectionID: connectionID,
			Records:      len(staged),
			IngestedAt:   ingestedAt,
		})
	}

	p.logger.Info().
		Str("connectionId", connectionID).
		Str("userId", userID).
		Int("records", len(staged)).
		Int("skipped", skipped).
		Msg("Export payload transformed")
	return len(staged), nil
}

// normalize maps one resource line to a record, preserving the original
// payload unmodified.
func (p *TransformPipeline) normalize(connectionID, userID string, line []byte, ingestedAt time.Time) (domain.NormalizedRecord, error) {
	var envelope struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return domain.NormalizedRecord{}, fmt.Errorf("failed to parse resource: %w", err)
	}
	if envelope.ResourceType == "" {
		return domain.NormalizedRecord{}, fmt.Errorf("resource is missing resourceType")
	}

	// The scanner reuses its buffer between lines.
	resource := make(json.RawMessage, len(line))
	copy(resource, line)

	return domain.NormalizedRecord{
		UserID:       userID,
		ConnectionID: connectionID,
		ResourceType: envelope.ResourceType,
		ResourceID:   envelope.ID,
		IngestedAt:   ingestedAt,
		Resource:     resource,
		Source:       p.cfg.SourceTag,
	}, nil
}
