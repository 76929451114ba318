package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframer_videos_processed_total",
		Help: "Total number of videos processed, by outcome",
	}, []string{"outcome"})

	KeyframesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframer_keyframes_total",
		Help: "Total number of keyframes written, by source branch",
	}, []string{"source"})

	ShotsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframer_shots_skipped_total",
		Help: "Shots that produced no keyframe, by reason",
	}, []string{"reason"})

	FallbackTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframer_fallback_triggered_total",
		Help: "Videos whose shot density was below the configured floor",
	})

	VideoProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyframer_video_processing_duration_seconds",
		Help:    "Duration of the keyframe pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyframer_active_workers",
		Help: "Number of videos currently being processed",
	})
)
