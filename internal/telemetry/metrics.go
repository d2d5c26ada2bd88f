package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	UploadsAccepted   metric.Int64Counter
	JobsFinished      metric.Int64Counter
	JobDuration       metric.Float64Histogram
	PipelineStageTime metric.Float64Histogram
	SearchQueries     metric.Int64Counter
	RAGConfidence     metric.Float64Histogram
	CommentsPosted    metric.Int64Counter
	TokensUsed        metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("document-archive-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	uploadsAccepted, err := meter.Int64Counter(
		"archive.uploads.accepted",
		metric.WithDescription("Uploads accepted into the intake pipeline"),
	)
	if err != nil {
		return nil, err
	}

	jobsFinished, err := meter.Int64Counter(
		"archive.jobs.finished",
		metric.WithDescription("Processing jobs reaching a terminal state"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"archive.job.duration",
		metric.WithDescription("End-to-end processing job duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pipelineStageTime, err := meter.Float64Histogram(
		"archive.pipeline.stage.duration",
		metric.WithDescription("Per-stage pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchQueries, err := meter.Int64Counter(
		"archive.search.queries",
		metric.WithDescription("Search queries served"),
	)
	if err != nil {
		return nil, err
	}

	ragConfidence, err := meter.Float64Histogram(
		"archive.rag.confidence",
		metric.WithDescription("Confidence score distribution of RAG answers"),
	)
	if err != nil {
		return nil, err
	}

	commentsPosted, err := meter.Int64Counter(
		"archive.comments.posted",
		metric.WithDescription("Comments accepted"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		UploadsAccepted:   uploadsAccepted,
		JobsFinished:      jobsFinished,
		JobDuration:       jobDuration,
		PipelineStageTime: pipelineStageTime,
		SearchQueries:     searchQueries,
		RAGConfidence:     ragConfidence,
		CommentsPosted:    commentsPosted,
		TokensUsed:        tokensUsed,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordUpload counts one accepted upload.
func (m *Metrics) RecordUpload(contentType string) {
	m.UploadsAccepted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("upload.content_type", contentType)))
}

// RecordJob records a finished processing job.
func (m *Metrics) RecordJob(status string, duration float64) {
	attrs := []attribute.KeyValue{attribute.String("job.status", status)}
	m.JobsFinished.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.JobDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordPipelineStage records one stage of the processing pipeline.
func (m *Metrics) RecordPipelineStage(stage string, duration float64) {
	m.PipelineStageTime.Record(context.Background(), duration,
		metric.WithAttributes(attribute.String("pipeline.stage", stage)))
}

// RecordSearch counts a served search query by mode.
func (m *Metrics) RecordSearch(mode string, results int) {
	attrs := []attribute.KeyValue{
		attribute.String("search.mode", mode),
		attribute.Bool("search.empty", results == 0),
	}
	m.SearchQueries.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordRAGAnswer tracks answer confidence. Confidence is telemetry, not
// a quality guarantee; the distribution is what operators watch.
func (m *Metrics) RecordRAGAnswer(confidence float64, sources int) {
	m.RAGConfidence.Record(context.Background(), confidence,
		metric.WithAttributes(attribute.Int("rag.sources", sources)))
}

// RecordComment counts an accepted comment.
func (m *Metrics) RecordComment() {
	m.CommentsPosted.Add(context.Background(), 1)
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}
