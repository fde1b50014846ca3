package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskrank/internal/model"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresChallengeRepo はPostgreSQLを使用したチャレンジリポジトリ。
type PostgresChallengeRepo struct {
	db *sql.DB
}

// NewPostgresChallengeRepo はPostgresChallengeRepoを生成する。
func NewPostgresChallengeRepo(db *sql.DB) *PostgresChallengeRepo {
	return &PostgresChallengeRepo{db: db}
}

const challengeColumns = `id, kind, title, start_date, end_date, goal_points, goal_tasks, reward_badge, active, created_at`

func scanChallenge(row rowScanner) (*model.Challenge, error) {
	c := &model.Challenge{}
	var kind string
	var goalPoints, goalTasks sql.NullInt64
	var rewardBadge sql.NullString

	if err := row.Scan(
		&c.ID, &kind, &c.Title, &c.StartDate, &c.EndDate,
		&goalPoints, &goalTasks, &rewardBadge, &c.Active, &c.CreatedAt,
	); err != nil {
		return nil, err
	}

	c.Kind = model.ChallengeKind(kind)
	if goalPoints.Valid {
		v := int(goalPoints.Int64)
		c.GoalPoints = &v
	}
	if goalTasks.Valid {
		v := int(goalTasks.Int64)
		c.GoalTasks = &v
	}
	if rewardBadge.Valid {
		c.RewardBadge = &rewardBadge.String
	}
	return c, nil
}

// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
func (r *PostgresChallengeRepo) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	c, err := scanChallenge(r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	return c, nil
}

// ListActive はアクティブなチャレンジを開始日昇順で返す。
func (r *PostgresChallengeRepo) ListActive(ctx context.Context) ([]*model.Challenge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE active = TRUE ORDER BY start_date ASC, kind ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブなチャレンジの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var challenges []*model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("チャレンジの読み取りに失敗しました: %w", err)
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャレンジの走査に失敗しました: %w", err)
	}
	return challenges, nil
}

// Create はチャレンジを作成する。
// UNIQUE(kind, start_date)に違反した場合はErrChallengeExistsを返す。
func (r *PostgresChallengeRepo) Create(ctx context.Context, c *model.Challenge) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (`+challengeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, string(c.Kind), c.Title, c.StartDate, c.EndDate,
		c.GoalPoints, c.GoalTasks, c.RewardBadge, c.Active, c.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrChallengeExists
		}
		return fmt.Errorf("チャレンジの作成に失敗しました: %w", err)
	}
	return nil
}

// DeactivateExpired は終了日時を過ぎたアクティブなチャレンジを非アクティブにする。
func (r *PostgresChallengeRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE challenges SET active = FALSE WHERE active = TRUE AND end_date < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("チャレンジの非アクティブ化に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var _ ChallengeRepository = (*PostgresChallengeRepo)(nil)
