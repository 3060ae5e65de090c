package prometheus

// AppMetrics holds every application metric emitted by fiscore.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Obligation lifecycle
	InstancesGeneratedTotal CounterVec // labels: competence
	GeneratorRunsTotal      CounterVec // labels: result
	CompletionsTotal        CounterVec // labels: outcome (on_time_done|late_done), source (manual|document)
	UnmarksTotal            CounterVec
	SweepUpdatesTotal       CounterVec

	// Intake pipeline
	UploadsTotal          CounterVec   // labels: result
	OCRExtractionsTotal   CounterVec   // labels: result (success|needs_review|error)
	OCRExtractionDuration HistogramVec // labels: document_type
	MatchesTotal          CounterVec   // labels: kind (client|obligation), result (found|not_found)
	ClassificationsTotal  CounterVec   // labels: mode (single|batch), result
	BatchItemsTotal       CounterVec   // labels: result
	FileCollisionsTotal   CounterVec

	// Delivery queue
	DeliveryAttemptsTotal CounterVec // labels: result (sent|retry|failed)
	DeliveryQueueDepth    GaugeVec   // labels: status
}

// DefaultHTTPDurationBuckets covers sub-millisecond to multi-second requests.
var DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// DefaultOCRDurationBuckets covers the long tail of vision-extraction calls.
var DefaultOCRDurationBuckets = []float64{.5, 1, 2, 5, 10, 30, 60, 120}

// NewAppMetrics registers all application metrics on the collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")

	m.InstancesGeneratedTotal = collector.RegisterCounter("instances_generated_total", "Obligation instances created by the generator", "competence")
	m.GeneratorRunsTotal = collector.RegisterCounter("generator_runs_total", "Instance generator runs", "result")
	m.CompletionsTotal = collector.RegisterCounter("instance_completions_total", "Instance completions", "outcome", "source")
	m.UnmarksTotal = collector.RegisterCounter("instance_unmarks_total", "Instance completion reversals")
	m.SweepUpdatesTotal = collector.RegisterCounter("status_sweep_updates_total", "Status cache rows rewritten by the sweep")

	m.UploadsTotal = collector.RegisterCounter("staging_uploads_total", "Staging uploads received", "result")
	m.OCRExtractionsTotal = collector.RegisterCounter("ocr_extractions_total", "OCR extraction outcomes", "result")
	m.OCRExtractionDuration = collector.RegisterHistogram("ocr_extraction_duration_seconds", "OCR extraction duration", DefaultOCRDurationBuckets, "document_type")
	m.MatchesTotal = collector.RegisterCounter("matches_total", "Matcher lookups", "kind", "result")
	m.ClassificationsTotal = collector.RegisterCounter("classifications_total", "Classification operations", "mode", "result")
	m.BatchItemsTotal = collector.RegisterCounter("batch_items_total", "Batch classification item outcomes", "result")
	m.FileCollisionsTotal = collector.RegisterCounter("file_name_collisions_total", "Destination filename collisions resolved by renaming")

	m.DeliveryAttemptsTotal = collector.RegisterCounter("delivery_attempts_total", "Delivery dispatch attempts", "result")
	m.DeliveryQueueDepth = collector.RegisterGauge("delivery_queue_depth", "Delivery queue items by status", "status")

	return m
}
