package model

import "time"

// PointsLedgerEntry は追記専用のポイント履歴を表す。
// 作成後は更新も削除もされない。
type PointsLedgerEntry struct {
	ID        string
	UserID    string
	Points    int
	Day       time.Time
	CreatedAt time.Time
}

// UserTotals は期間内のユーザー別合計を表す。
// 台帳からチャレンジ進捗を再計算する際に使用する。
type UserTotals struct {
	UserID string
	Points int
	Tasks  int
}

// DailyTotal は1日分のポイント合計を表す。
type DailyTotal struct {
	Day    time.Time
	Points int
	Tasks  int
}
