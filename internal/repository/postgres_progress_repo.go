package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
)

// PostgresProgressRepo はPostgreSQLを使用したチャレンジ進捗リポジトリ。
// 加算はINSERT ON CONFLICT DO UPDATEで原子的に行い、読み取り→書き戻しの競合を避ける。
type PostgresProgressRepo struct {
	db *sql.DB
}

// NewPostgresProgressRepo はPostgresProgressRepoを生成する。
func NewPostgresProgressRepo(db *sql.DB) *PostgresProgressRepo {
	return &PostgresProgressRepo{db: db}
}

const progressColumns = `challenge_id, user_id, points_earned, tasks_completed, completed, completed_at, updated_at`

func scanProgress(row rowScanner) (*model.ChallengeProgress, error) {
	p := &model.ChallengeProgress{}
	var completedAt sql.NullTime
	if err := row.Scan(
		&p.ChallengeID, &p.UserID, &p.PointsEarned, &p.TasksCompleted,
		&p.Completed, &completedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return p, nil
}

// Find は進捗を取得する。見つからない場合はnilを返す。
func (r *PostgresProgressRepo) Find(ctx context.Context, challengeID, userID string) (*model.ChallengeProgress, error) {
	p, err := scanProgress(r.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM challenge_progress WHERE challenge_id = $1 AND user_id = $2`,
		challengeID, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャレンジ進捗の取得に失敗しました: %w", err)
	}
	return p, nil
}

// Increment は進捗を原子的に加算し、更新後の行を返す。
func (r *PostgresProgressRepo) Increment(ctx context.Context, challengeID, userID string, points, tasks int) (*model.ChallengeProgress, error) {
	p, err := scanProgress(r.db.QueryRowContext(ctx,
		`INSERT INTO challenge_progress (challenge_id, user_id, points_earned, tasks_completed, completed, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)
		 ON CONFLICT (challenge_id, user_id) DO UPDATE SET
		     points_earned = challenge_progress.points_earned + EXCLUDED.points_earned,
		     tasks_completed = challenge_progress.tasks_completed + EXCLUDED.tasks_completed,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+progressColumns,
		challengeID, userID, points, tasks, time.Now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("チャレンジ進捗の加算に失敗しました: %w", err)
	}
	return p, nil
}

// Overwrite は台帳から再計算した値で進捗を上書きする。completedは変更しない。
func (r *PostgresProgressRepo) Overwrite(ctx context.Context, challengeID, userID string, points, tasks int) (*model.ChallengeProgress, error) {
	p, err := scanProgress(r.db.QueryRowContext(ctx,
		`INSERT INTO challenge_progress (challenge_id, user_id, points_earned, tasks_completed, completed, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)
		 ON CONFLICT (challenge_id, user_id) DO UPDATE SET
		     points_earned = EXCLUDED.points_earned,
		     tasks_completed = EXCLUDED.tasks_completed,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+progressColumns,
		challengeID, userID, points, tasks, time.Now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("チャレンジ進捗の再計算結果の保存に失敗しました: %w", err)
	}
	return p, nil
}

// MarkCompleted はcompleted=falseの行のみをtrueに遷移させる。
func (r *PostgresProgressRepo) MarkCompleted(ctx context.Context, challengeID, userID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE challenge_progress SET completed = TRUE, completed_at = $3, updated_at = $3
		 WHERE challenge_id = $1 AND user_id = $2 AND completed = FALSE`,
		challengeID, userID, at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("チャレンジ達成の記録に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// compile-time interface check
var _ ProgressRepository = (*PostgresProgressRepo)(nil)
