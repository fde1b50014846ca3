package handler

import (
	"context"
	"fmt"

	"github.com/hitoshi/taskrank/internal/aggregate"
	"github.com/hitoshi/taskrank/internal/challenge"
	"github.com/hitoshi/taskrank/internal/leaderboard"
	"github.com/hitoshi/taskrank/internal/ledger"
	"github.com/hitoshi/taskrank/internal/model"
)

// ChallengeServiceAdapter は challenge.Manager を ChallengeService に適合させるアダプタ。
type ChallengeServiceAdapter struct {
	manager *challenge.Manager
}

// NewChallengeServiceAdapter はChallengeServiceAdapterを生成する。
func NewChallengeServiceAdapter(manager *challenge.Manager) *ChallengeServiceAdapter {
	return &ChallengeServiceAdapter{manager: manager}
}

// ListActive はアクティブなチャレンジごとに呼び出し元の進捗を引き、レスポンス型で返す。
func (a *ChallengeServiceAdapter) ListActive(ctx context.Context, userID string) ([]challengeProgressResponse, error) {
	active, err := a.manager.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]challengeProgressResponse, 0, len(active))
	for _, c := range active {
		item, err := a.Progress(ctx, c.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("チャレンジ進捗の取得に失敗しました (challenge=%s): %w", c.ID, err)
		}
		results = append(results, *item)
	}
	return results, nil
}

// Progress は指定チャレンジの進捗をレスポンス型で返す。
func (a *ChallengeServiceAdapter) Progress(ctx context.Context, challengeID, userID string) (*challengeProgressResponse, error) {
	c, p, err := a.manager.Progress(ctx, challengeID, userID)
	if err != nil {
		return nil, err
	}
	return &challengeProgressResponse{
		Challenge: toChallengeResponse(c),
		Progress:  toProgressResponse(p),
	}, nil
}

// toProgressResponse はドメインの進捗をレスポンス型に変換する。
func toProgressResponse(p *model.ChallengeProgress) progressResponse {
	return progressResponse{
		PointsEarned:   p.PointsEarned,
		TasksCompleted: p.TasksCompleted,
		Completed:      p.Completed,
		CompletedAt:    p.CompletedAt,
	}
}

// --- compile-time interface checks ---

var _ ChallengeService = (*ChallengeServiceAdapter)(nil)
var _ CompletionService = (*aggregate.Recorder)(nil)
var _ PointsService = (*ledger.Service)(nil)
var _ LeaderboardService = (*leaderboard.Service)(nil)
