package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RemovalRemoved = "removed"
	RemovalMissing = "missing"
	RemovalFailed  = "failed"
)

// Upload records staging, rejection and cleanup activity. A nil *Upload is a no-op.
type Upload struct {
	stagedFiles     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	cleanupRemovals *prometheus.CounterVec
	cleanupDuration prometheus.Histogram
}

func NewUpload(namespace string, reg prometheus.Registerer) (*Upload, error) {
	if namespace == "" {
		namespace = "media"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Upload{
		stagedFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "staged_files_total",
			Help:      "Files written to the temporary upload directory.",
		}, []string{"field"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "rejections_total",
			Help:      "Upload requests rejected, by error code.",
		}, []string{"code"}),
		cleanupRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "cleanup_removals_total",
			Help:      "Staged file removal attempts, by result.",
		}, []string{"result"}),
		cleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "cleanup_duration_seconds",
			Help:      "Time spent removing the staged files of one request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{m.stagedFiles, m.rejections, m.cleanupRemovals, m.cleanupDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, fmt.Errorf("upload metrics already registered in namespace %q: %w", namespace, err)
			}
			return nil, fmt.Errorf("register upload metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Upload) StagedFile(field string) {
	if m == nil {
		return
	}
	m.stagedFiles.WithLabelValues(field).Inc()
}

func (m *Upload) Rejected(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Upload) Removal(result string) {
	if m == nil {
		return
	}
	m.cleanupRemovals.WithLabelValues(result).Inc()
}

func (m *Upload) ObserveCleanup(d time.Duration) {
	if m == nil {
		return
	}
	m.cleanupDuration.Observe(d.Seconds())
}
