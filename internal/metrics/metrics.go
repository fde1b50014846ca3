// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スコアリングエンジン、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordCompletion(timing string, points int)
	RecordRecordLatency(duration time.Duration)
	RecordVersionConflict()
	RecordBadgeAwarded(badgeID string)
	RecordSideEffectFailure(step string)
	RecordChallengeCreated(kind string)
	RecordChallengesDeactivated(count int)
	RecordChallengeCompleted(kind string)
	RecordProgressReconciled(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	completions          *prometheus.CounterVec
	pointsAwarded        prometheus.Counter
	recordLatency        prometheus.Histogram
	versionConflicts     prometheus.Counter
	badgesAwarded        *prometheus.CounterVec
	sideEffectFailures   *prometheus.CounterVec
	challengesCreated    *prometheus.CounterVec
	challengesDeactivate prometheus.Counter
	challengesCompleted  *prometheus.CounterVec
	progressReconciled   prometheus.Counter
	httpStatus           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrank_completions_total",
			Help: "記録したタスク完了イベントの合計数",
		}, []string{"timing"}),
		pointsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrank_points_awarded_total",
			Help: "付与したポイントの合計",
		}),
		recordLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskrank_record_latency_seconds",
			Help:    "完了イベント記録のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrank_version_conflicts_total",
			Help: "集計更新の楽観的排他制御で発生した競合の合計数",
		}),
		badgesAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrank_badges_awarded_total",
			Help: "バッジ別の付与数",
		}, []string{"badge_id"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrank_side_effect_failures_total",
			Help: "ベストエフォート処理の失敗数",
		}, []string{"step"}),
		challengesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrank_challenges_created_total",
			Help: "種別ごとのチャレンジ作成数",
		}, []string{"kind"}),
		challengesDeactivate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrank_challenges_deactivated_total",
			Help: "期限切れで非アクティブにしたチャレンジの合計数",
		}),
		challengesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrank_challenges_completed_total",
			Help: "種別ごとのチャレンジ達成数",
		}, []string{"kind"}),
		progressReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrank_progress_reconciled_total",
			Help: "台帳から再計算したチャレンジ進捗行の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrank_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.completions,
		c.pointsAwarded,
		c.recordLatency,
		c.versionConflicts,
		c.badgesAwarded,
		c.sideEffectFailures,
		c.challengesCreated,
		c.challengesDeactivate,
		c.challengesCompleted,
		c.progressReconciled,
		c.httpStatus,
	)

	return c
}

// RecordCompletion は完了イベントと付与ポイントを記録する。
func (c *Collector) RecordCompletion(timing string, points int) {
	c.completions.WithLabelValues(timing).Inc()
	c.pointsAwarded.Add(float64(points))
}

// RecordRecordLatency は完了イベント記録のレイテンシを記録する。
func (c *Collector) RecordRecordLatency(duration time.Duration) {
	c.recordLatency.Observe(duration.Seconds())
}

// RecordVersionConflict は楽観的排他制御の競合を記録する。
func (c *Collector) RecordVersionConflict() {
	c.versionConflicts.Inc()
}

// RecordBadgeAwarded はバッジ付与を記録する。
func (c *Collector) RecordBadgeAwarded(badgeID string) {
	c.badgesAwarded.WithLabelValues(badgeID).Inc()
}

// RecordSideEffectFailure はベストエフォート処理（badge, challenge）の失敗を記録する。
func (c *Collector) RecordSideEffectFailure(step string) {
	c.sideEffectFailures.WithLabelValues(step).Inc()
}

// RecordChallengeCreated はチャレンジ作成を記録する。
func (c *Collector) RecordChallengeCreated(kind string) {
	c.challengesCreated.WithLabelValues(kind).Inc()
}

// RecordChallengesDeactivated は非アクティブ化したチャレンジ数を記録する。
func (c *Collector) RecordChallengesDeactivated(count int) {
	c.challengesDeactivate.Add(float64(count))
}

// RecordChallengeCompleted はチャレンジ達成を記録する。
func (c *Collector) RecordChallengeCompleted(kind string) {
	c.challengesCompleted.WithLabelValues(kind).Inc()
}

// RecordProgressReconciled は再計算した進捗行数を記録する。
func (c *Collector) RecordProgressReconciled(count int) {
	c.progressReconciled.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成とテストで使用する。
type Nop struct{}

func (Nop) RecordCompletion(string, int) {}
func (Nop) RecordRecordLatency(time.Duration) {}
func (Nop) RecordVersionConflict() {}
func (Nop) RecordBadgeAwarded(string) {}
func (Nop) RecordSideEffectFailure(string) {}
func (Nop) RecordChallengeCreated(string) {}
func (Nop) RecordChallengesDeactivated(int) {}
func (Nop) RecordChallengeCompleted(string) {}
func (Nop) RecordProgressReconciled(int) {}
func (Nop) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
