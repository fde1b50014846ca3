package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskrank/internal/model"
)

// PostgresLedgerRepo はPostgreSQLを使用したポイント台帳リポジトリ。
// 台帳は追記専用で、UPDATE/DELETEは発行しない。
type PostgresLedgerRepo struct {
	db *sql.DB
}

// NewPostgresLedgerRepo はPostgresLedgerRepoを生成する。
func NewPostgresLedgerRepo(db *sql.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

// Append は台帳にエントリを追記する。IDが空の場合は採番する。
func (r *PostgresLedgerRepo) Append(ctx context.Context, entry *model.PointsLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO points_ledger (id, user_id, points, day, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.UserID, entry.Points, entry.Day.Format(dateLayout), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ポイント台帳への追記に失敗しました: %w", err)
	}
	return nil
}

// ListByUser は日付範囲内のユーザーのエントリを日付昇順で返す。
func (r *PostgresLedgerRepo) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*model.PointsLedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, points, day, created_at
		 FROM points_ledger
		 WHERE user_id = $1 AND day BETWEEN $2 AND $3
		 ORDER BY day ASC, created_at ASC`,
		userID, from.Format(dateLayout), to.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("ポイント履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.PointsLedgerEntry
	for rows.Next() {
		e := &model.PointsLedgerEntry{}
		var day string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &day, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ポイント履歴の読み取りに失敗しました: %w", err)
		}
		if e.Day, err = parseDate(day); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ポイント履歴の走査に失敗しました: %w", err)
	}
	return entries, nil
}

// SumByUserInRange は日付範囲内のユーザー別合計を返す。
func (r *PostgresLedgerRepo) SumByUserInRange(ctx context.Context, from, to time.Time) ([]model.UserTotals, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, COALESCE(SUM(points), 0), COUNT(*)
		 FROM points_ledger
		 WHERE day BETWEEN $1 AND $2
		 GROUP BY user_id
		 ORDER BY user_id`,
		from.Format(dateLayout), to.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("期間集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var totals []model.UserTotals
	for rows.Next() {
		var t model.UserTotals
		if err := rows.Scan(&t.UserID, &t.Points, &t.Tasks); err != nil {
			return nil, fmt.Errorf("期間集計の読み取りに失敗しました: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期間集計の走査に失敗しました: %w", err)
	}
	return totals, nil
}

// compile-time interface check
var _ LedgerRepository = (*PostgresLedgerRepo)(nil)
