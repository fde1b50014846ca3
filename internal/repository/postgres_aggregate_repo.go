package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
	"github.com/lib/pq"
)

// dateLayout はDATE型カラムとの受け渡しに使う書式。
// time.Timeのタイムゾーン変換を経由させず、暦日のまま渡す。
const dateLayout = "2006-01-02"

// PostgresAggregateRepo はPostgreSQLを使用したユーザー集計リポジトリ。
type PostgresAggregateRepo struct {
	db *sql.DB
}

// NewPostgresAggregateRepo はPostgresAggregateRepoを生成する。
func NewPostgresAggregateRepo(db *sql.DB) *PostgresAggregateRepo {
	return &PostgresAggregateRepo{db: db}
}

const aggregateColumns = `user_id, total_points, tasks_completed, tasks_on_time, tasks_early, tasks_late,
		        current_streak, longest_streak, last_completion_day, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row rowScanner) (*model.UserAggregate, error) {
	agg := model.NewUserAggregate("")
	var lastDay sql.NullString

	err := row.Scan(
		&agg.UserID, &agg.TotalPoints, &agg.TasksCompleted,
		&agg.TasksOnTime, &agg.TasksEarly, &agg.TasksLate,
		&agg.CurrentStreak, &agg.LongestStreak, &lastDay,
		&agg.Version, &agg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastDay.Valid {
		d, err := parseDate(lastDay.String)
		if err != nil {
			return nil, err
		}
		agg.LastCompletionDay = &d
	}
	return agg, nil
}

// Find は指定ユーザーの集計をバッジ込みで取得する。見つからない場合はnilを返す。
func (r *PostgresAggregateRepo) Find(ctx context.Context, userID string) (*model.UserAggregate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+aggregateColumns+`
		 FROM user_aggregates WHERE user_id = $1`,
		userID,
	)
	agg, err := scanAggregate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー集計の取得に失敗しました: %w", err)
	}

	if err := r.loadBadges(ctx, []*model.UserAggregate{agg}); err != nil {
		return nil, err
	}
	return agg, nil
}

// Save は集計をバージョン比較付きで保存する。
func (r *PostgresAggregateRepo) Save(ctx context.Context, agg *model.UserAggregate) error {
	now := time.Now().UTC()
	var lastDay any
	if agg.LastCompletionDay != nil {
		lastDay = agg.LastCompletionDay.Format(dateLayout)
	}

	var (
		result sql.Result
		err    error
	)
	if agg.Version == 0 {
		result, err = r.db.ExecContext(ctx,
			`INSERT INTO user_aggregates (user_id, total_points, tasks_completed, tasks_on_time, tasks_early, tasks_late,
			     current_streak, longest_streak, last_completion_day, version, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)
			 ON CONFLICT (user_id) DO NOTHING`,
			agg.UserID, agg.TotalPoints, agg.TasksCompleted,
			agg.TasksOnTime, agg.TasksEarly, agg.TasksLate,
			agg.CurrentStreak, agg.LongestStreak, lastDay, now,
		)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE user_aggregates SET
			    total_points = $3, tasks_completed = $4, tasks_on_time = $5, tasks_early = $6, tasks_late = $7,
			    current_streak = $8, longest_streak = $9, last_completion_day = $10,
			    version = version + 1, updated_at = $11
			 WHERE user_id = $1 AND version = $2`,
			agg.UserID, agg.Version, agg.TotalPoints, agg.TasksCompleted,
			agg.TasksOnTime, agg.TasksEarly, agg.TasksLate,
			agg.CurrentStreak, agg.LongestStreak, lastDay, now,
		)
	}
	if err != nil {
		return fmt.Errorf("ユーザー集計の保存に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	agg.Version++
	agg.UpdatedAt = now
	return nil
}

// AddBadges はuser_badgesにバッジを冪等に追加する。
// PRIMARY KEY(user_id, badge_id)によって重複は無視される。
func (r *PostgresAggregateRepo) AddBadges(ctx context.Context, userID string, badges []model.BadgeID, awardedAt time.Time) error {
	if len(badges) == 0 {
		return nil
	}
	ids := make([]string, len(badges))
	for i, b := range badges {
		ids[i] = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_badges (user_id, badge_id, awarded_at)
		 SELECT $1, unnest($2::text[]), $3
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, pq.Array(ids), awardedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("バッジの付与に失敗しました: %w", err)
	}
	return nil
}

// ListRanked は全体ランキング順に集計を取得する。
// 同点はtasks_completed降順、さらにuser_id昇順で決定的に並べる。
func (r *PostgresAggregateRepo) ListRanked(ctx context.Context, limit, offset int) ([]*model.UserAggregate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+aggregateColumns+`
		 FROM user_aggregates
		 ORDER BY total_points DESC, tasks_completed DESC, user_id ASC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ランキングの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	aggs, err := collectAggregates(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadBadges(ctx, aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}

// FindMany は指定ユーザー群の集計を取得する。
func (r *PostgresAggregateRepo) FindMany(ctx context.Context, userIDs []string) ([]*model.UserAggregate, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+aggregateColumns+`
		 FROM user_aggregates WHERE user_id = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー集計の一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	aggs, err := collectAggregates(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadBadges(ctx, aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}

// RankOf は全体ランキングでの順位を返す。集計がない場合は0を返す。
func (r *PostgresAggregateRepo) RankOf(ctx context.Context, userID string) (int, error) {
	var points, tasks int
	err := r.db.QueryRowContext(ctx,
		`SELECT total_points, tasks_completed FROM user_aggregates WHERE user_id = $1`,
		userID,
	).Scan(&points, &tasks)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ユーザー集計の取得に失敗しました: %w", err)
	}

	var ahead int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_aggregates
		 WHERE total_points > $1
		    OR (total_points = $1 AND tasks_completed > $2)
		    OR (total_points = $1 AND tasks_completed = $2 AND user_id < $3)`,
		points, tasks, userID,
	).Scan(&ahead)
	if err != nil {
		return 0, fmt.Errorf("順位の算出に失敗しました: %w", err)
	}
	return ahead + 1, nil
}

// Count は集計を持つユーザー数を返す。
func (r *PostgresAggregateRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_aggregates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func collectAggregates(rows *sql.Rows) ([]*model.UserAggregate, error) {
	var aggs []*model.UserAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザー集計の読み取りに失敗しました: %w", err)
		}
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー集計の走査に失敗しました: %w", err)
	}
	return aggs, nil
}

// loadBadges はaggsのBadgesをuser_badgesから埋める。
func (r *PostgresAggregateRepo) loadBadges(ctx context.Context, aggs []*model.UserAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	byUser := make(map[string]*model.UserAggregate, len(aggs))
	ids := make([]string, 0, len(aggs))
	for _, a := range aggs {
		byUser[a.UserID] = a
		ids = append(ids, a.UserID)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, badge_id FROM user_badges WHERE user_id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("バッジの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, badgeID string
		if err := rows.Scan(&userID, &badgeID); err != nil {
			return fmt.Errorf("バッジの読み取りに失敗しました: %w", err)
		}
		if a, ok := byUser[userID]; ok {
			a.Badges[model.BadgeID(badgeID)] = true
		}
	}
	return rows.Err()
}

// parseDate はDATEカラムの値をUTCの0時として解釈する。
// lib/pqはDATEを"2006-01-02"またはRFC3339形式で返すため両方を受け付ける。
func parseDate(s string) (time.Time, error) {
	if len(s) >= len(dateLayout) {
		if t, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("日付の解析に失敗しました: %q", s)
}

// compile-time interface check
var _ AggregateRepository = (*PostgresAggregateRepo)(nil)
