// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
)

var (
	// ErrVersionConflict は楽観的排他制御で他の書き込みが先行したことを示す。
	ErrVersionConflict = errors.New("aggregate version conflict")

	// ErrChallengeExists は同一(kind, start_date)のチャレンジが既に存在することを示す。
	// 呼び出し側は「作成済み」として扱い、エラーにしない。
	ErrChallengeExists = errors.New("challenge already exists for period")
)

// AggregateRepository はユーザー集計行の永続化インターフェース。
type AggregateRepository interface {
	// Find は指定ユーザーの集計をバッジ込みで取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID string) (*model.UserAggregate, error)

	// Save は集計を保存する。
	// Versionが0の場合は新規作成、それ以外はVersionが一致する場合のみ更新する。
	// 他の書き込みが先行していた場合はErrVersionConflictを返す。
	// 成功時はaggのVersionを新しい値に更新する。バッジは保存しない。
	Save(ctx context.Context, agg *model.UserAggregate) error

	// AddBadges はバッジを和集合として冪等に追加する。既存のバッジは削除しない。
	AddBadges(ctx context.Context, userID string, badges []model.BadgeID, awardedAt time.Time) error

	// ListRanked はtotal_points降順、tasks_completed降順で集計を取得する。
	ListRanked(ctx context.Context, limit, offset int) ([]*model.UserAggregate, error)

	// FindMany は指定ユーザー群の集計を取得する。集計のないユーザーは結果に含まれない。
	FindMany(ctx context.Context, userIDs []string) ([]*model.UserAggregate, error)

	// RankOf は全体ランキングにおける順位（1始まり）を返す。集計がない場合は0を返す。
	RankOf(ctx context.Context, userID string) (int, error)

	// Count は集計を持つユーザー数を返す。
	Count(ctx context.Context) (int, error)
}

// LedgerRepository は追記専用ポイント台帳の永続化インターフェース。
type LedgerRepository interface {
	// Append は台帳にエントリを追記する。
	Append(ctx context.Context, entry *model.PointsLedgerEntry) error

	// ListByUser は[from, to]の日付範囲にあるユーザーのエントリを日付昇順で返す。
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*model.PointsLedgerEntry, error)

	// SumByUserInRange は[from, to]の日付範囲のユーザー別合計ポイントと件数を返す。
	SumByUserInRange(ctx context.Context, from, to time.Time) ([]model.UserTotals, error)
}

// ChallengeRepository はチャレンジ定義の永続化インターフェース。
type ChallengeRepository interface {
	// FindByID は指定IDのチャレンジを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Challenge, error)

	// ListActive はactive=trueのチャレンジを開始日昇順で返す。
	ListActive(ctx context.Context) ([]*model.Challenge, error)

	// Create はチャレンジを作成する。
	// 同一(kind, start_date)が既に存在する場合はErrChallengeExistsを返す。
	Create(ctx context.Context, challenge *model.Challenge) error

	// DeactivateExpired はend_date < nowのアクティブなチャレンジを非アクティブにし、件数を返す。
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}

// ProgressRepository はチャレンジ進捗の永続化インターフェース。
type ProgressRepository interface {
	// Find は進捗を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, challengeID, userID string) (*model.ChallengeProgress, error)

	// Increment は進捗行を遅延作成しつつポイントとタスク数を原子的に加算し、更新後の行を返す。
	Increment(ctx context.Context, challengeID, userID string, points, tasks int) (*model.ChallengeProgress, error)

	// Overwrite は台帳から再計算した値で進捗を上書きする。completedは変更しない。
	Overwrite(ctx context.Context, challengeID, userID string, points, tasks int) (*model.ChallengeProgress, error)

	// MarkCompleted はcompletedがfalseの場合のみtrueに遷移させる。
	// 今回の呼び出しで遷移した場合にtrueを返す。
	MarkCompleted(ctx context.Context, challengeID, userID string, at time.Time) (bool, error)
}

// GroupScoreRepository はグループ単位スコアの永続化インターフェース。
type GroupScoreRepository interface {
	// Add はグループ内ユーザーのスコアにdeltaを原子的に加算し、加算後の値を返す。
	Add(ctx context.Context, groupID, userID string, delta int) (int, error)

	// List はグループのスコア一覧を返す。順序は保証しない。
	List(ctx context.Context, groupID string) ([]model.GroupScore, error)
}

// ContactRepository は連絡先（承認済みフレンド）の参照インターフェース。
// 連絡先の管理自体は外部モジュールの責務であり、ここでは読み取りのみを行う。
type ContactRepository interface {
	// ListAccepted はユーザーの承認済み連絡先のユーザーIDを返す。
	ListAccepted(ctx context.Context, userID string) ([]string, error)
}
