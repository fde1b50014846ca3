// Package tick はチャレンジのライフサイクルを定期的に進めるスケジューラを提供する。
// 起動直後に1回実行し、以降は一定間隔で実行する。
package tick

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskrank/internal/challenge"
	"github.com/hitoshi/taskrank/internal/model"
)

// Ticker はチャレンジの作成・終了を行うインターフェース。
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*challenge.TickResult, error)
}

// Scheduler はTickerを定期実行する。
type Scheduler struct {
	ticker Ticker
	clock  model.Clock
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(ticker Ticker, clock model.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ticker: ticker,
		clock:  clock,
		logger: logger,
	}
}

// Start はintervalごとにRunOnceを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("チャレンジスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行し、現在の期間のチャレンジを保証する
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("チャレンジのTickに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("チャレンジスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("チャレンジのTickに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は現在時刻でTickを1回実行する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	res, err := s.ticker.Tick(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("チャレンジのTickに失敗しました: %w", err)
	}

	s.logger.Info("チャレンジのTickが完了しました",
		slog.Int("deactivated", res.Deactivated),
		slog.Int("created", len(res.Created)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
