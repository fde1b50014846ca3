// Package reconcile はチャレンジ進捗をポイント台帳から再計算する定期ジョブを提供する。
// 増分更新で取りこぼした、または重複したイベントによるずれを修復する。
// 再計算は冪等で、何度実行しても同じ結果になる。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
)

// Reconciler はチャレンジ進捗の再計算を行うインターフェース。
type Reconciler interface {
	ListActive(ctx context.Context) ([]*model.Challenge, error)
	Reconcile(ctx context.Context, challengeID string) (int, error)
}

// Job はアクティブな全チャレンジの進捗を再計算するジョブ。
type Job struct {
	reconciler    Reconciler
	logger        *slog.Logger
	MaxConcurrent int // 同時に再計算するチャレンジ数（デフォルト: 4）
}

// NewJob は新しいJobを生成する。
// maxConcurrentが0以下の場合はデフォルト値4を使用する。
func NewJob(reconciler Reconciler, logger *slog.Logger, maxConcurrent int) *Job {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Job{
		reconciler:    reconciler,
		logger:        logger,
		MaxConcurrent: maxConcurrent,
	}
}

// Run はアクティブなチャレンジごとに進捗を再計算する。
// semaphoreパターンで並列数を制御し、一部が失敗しても残りは継続する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	challenges, err := j.reconciler.ListActive(ctx)
	if err != nil {
		j.logger.Error("再計算対象のチャレンジ取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("再計算対象のチャレンジ取得に失敗: %w", err)
	}

	sem := make(chan struct{}, j.MaxConcurrent)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		rowCount atomic.Int64
	)

	for _, c := range challenges {
		wg.Add(1)
		sem <- struct{}{}

		go func(c *model.Challenge) {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := j.reconciler.Reconcile(ctx, c.ID)
			if err != nil {
				j.logger.Error("チャレンジ進捗の再計算に失敗しました",
					slog.String("challenge_id", c.ID),
					slog.String("kind", string(c.Kind)),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("challenge %s: %w", c.ID, err))
				mu.Unlock()
				return
			}
			rowCount.Add(int64(n))
		}(c)
	}

	wg.Wait()

	j.logger.Info("チャレンジ進捗の再計算ジョブが完了しました",
		slog.Int("challenge_count", len(challenges)),
		slog.Int("failed_count", len(errs)),
		slog.Int64("progress_rows", rowCount.Load()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}

// Start はintervalごとにRunを実行する。コンテキストがキャンセルされるまで継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("再計算ジョブが失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}
