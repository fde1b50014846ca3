package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/taskrank/internal/model"
)

// PostgresGroupScoreRepo はPostgreSQLを使用したグループスコアリポジトリ。
type PostgresGroupScoreRepo struct {
	db *sql.DB
}

// NewPostgresGroupScoreRepo はPostgresGroupScoreRepoを生成する。
func NewPostgresGroupScoreRepo(db *sql.DB) *PostgresGroupScoreRepo {
	return &PostgresGroupScoreRepo{db: db}
}

// Add はグループ内ユーザーのスコアを原子的に加算する。
func (r *PostgresGroupScoreRepo) Add(ctx context.Context, groupID, userID string, delta int) (int, error) {
	var score int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO group_scores (group_id, user_id, score)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, user_id) DO UPDATE SET score = group_scores.score + EXCLUDED.score
		 RETURNING score`,
		groupID, userID, delta,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("グループスコアの加算に失敗しました: %w", err)
	}
	return score, nil
}

// List はグループのスコア一覧を返す。
func (r *PostgresGroupScoreRepo) List(ctx context.Context, groupID string) ([]model.GroupScore, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id, user_id, score FROM group_scores WHERE group_id = $1`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("グループスコアの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var scores []model.GroupScore
	for rows.Next() {
		var s model.GroupScore
		if err := rows.Scan(&s.GroupID, &s.UserID, &s.Score); err != nil {
			return nil, fmt.Errorf("グループスコアの読み取りに失敗しました: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// PostgresContactRepo は連絡先テーブルを参照するリポジトリ。
// contactsテーブルは外部のソーシャル機能が管理し、ここでは読み取りのみ行う。
type PostgresContactRepo struct {
	db *sql.DB
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

// ListAccepted は承認済み連絡先のユーザーIDを返す。
func (r *PostgresContactRepo) ListAccepted(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT contact_id FROM contacts WHERE user_id = $1 AND status = 'accepted'`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("連絡先の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("連絡先の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// compile-time interface check
var (
	_ GroupScoreRepository = (*PostgresGroupScoreRepo)(nil)
	_ ContactRepository    = (*PostgresContactRepo)(nil)
)
