package releases

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	uploadMeterName = "stockpile.releases"

	orgAttribute        = "stockpile.org"
	releaseAttribute    = "stockpile.release"
	statusAttribute     = "stockpile.upload.status"
	sizeBucketAttribute = "stockpile.upload.size_bucket"
)

var metrics *uploadMetrics

func init() {
	var err error
	metrics, err = initUploadMetrics()
	if err != nil {
		panic(fmt.Errorf("could not initialize release metrics: %w", err))
	}
}

type uploadMetrics struct {
	uploads     metric.Int64Counter
	uploadBytes metric.Int64Counter
	downloads   metric.Int64Counter
}

func initUploadMetrics() (*uploadMetrics, error) {
	result := &uploadMetrics{
		uploads:     noop.Int64Counter{},
		uploadBytes: noop.Int64Counter{},
		downloads:   noop.Int64Counter{},
	}

	var err error
	meter := otel.Meter(uploadMeterName)

	signalName := fmt.Sprintf("%s.uploads", uploadMeterName)
	if result.uploads, err = meter.Int64Counter(
		signalName,
		metric.WithDescription("the number of artifact upload attempts, by status")); err != nil {
		return nil, fmt.Errorf("%q counter init failed: %w", signalName, err)
	}

	signalName = fmt.Sprintf("%s.upload.bytes", uploadMeterName)
	if result.uploadBytes, err = meter.Int64Counter(
		signalName,
		metric.WithUnit("By"),
		metric.WithDescription("the number of artifact bytes accepted into the content store")); err != nil {
		return nil, fmt.Errorf("%q counter init failed: %w", signalName, err)
	}

	signalName = fmt.Sprintf("%s.downloads", uploadMeterName)
	if result.downloads, err = meter.Int64Counter(
		signalName,
		metric.WithDescription("the number of artifact content downloads served")); err != nil {
		return nil, fmt.Errorf("%q counter init failed: %w", signalName, err)
	}

	return result, nil
}

func (m *uploadMetrics) UploadSucceeded(ctx context.Context, org, version string, size int64) {
	m.uploads.Add(ctx, 1, metric.WithAttributes(
		attribute.String(orgAttribute, org),
		attribute.String(releaseAttribute, version),
		attribute.String(statusAttribute, "success"),
		attribute.String(sizeBucketAttribute, logBucket(8, size)),
	))
	m.uploadBytes.Add(ctx, size, metric.WithAttributes(
		attribute.String(orgAttribute, org),
	))
}

func (m *uploadMetrics) UploadConflicted(ctx context.Context, org, version string) {
	m.uploads.Add(ctx, 1, metric.WithAttributes(
		attribute.String(orgAttribute, org),
		attribute.String(releaseAttribute, version),
		attribute.String(statusAttribute, "conflict"),
	))
}

func (m *uploadMetrics) UploadInvalid(ctx context.Context, org string) {
	m.uploads.Add(ctx, 1, metric.WithAttributes(
		attribute.String(orgAttribute, org),
		attribute.String(statusAttribute, "invalid"),
	))
}

func (m *uploadMetrics) DownloadServed(ctx context.Context, org, version string) {
	m.downloads.Add(ctx, 1, metric.WithAttributes(
		attribute.String(orgAttribute, org),
		attribute.String(releaseAttribute, version),
	))
}

// logBucket returns a string bucket label for a given positive number
// bucketed into powers of some arbitrary base. For base 8, for example, we
// would have buckets:
//
//	<1, [1-8), [8-64), [64-512), etc.
//
// Go only supports a few bases with math.Log*, so this func performs a
// change of base: log_b(x) = log_a(x) / log_a(b)
func logBucket(base int, num int64) string {
	if num < 1 {
		return "<1"
	}
	b := float64(base)
	logB := math.Log(float64(num)) / math.Log(b)
	bucketExpLo := math.Floor(logB)
	return fmt.Sprintf("[%d,%d)", int(math.Pow(b, bucketExpLo)), int(math.Pow(b, bucketExpLo+1)))
}
