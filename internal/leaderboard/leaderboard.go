// Package leaderboard はユーザー集計とグループスコアの読み取り専用ランキングを提供する。
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/taskrank/internal/model"
	"github.com/hitoshi/taskrank/internal/repository"
)

const (
	// DefaultLimit はlimit未指定時の取得件数。
	DefaultLimit = 20
	// MaxLimit はlimitの上限。
	MaxLimit = 100
)

// Entry はランキングの1行。
type Entry struct {
	Rank           int
	UserID         string
	TotalPoints    int
	TasksCompleted int
	CurrentStreak  int
	LongestStreak  int
}

// Page は全体ランキングの1ページ。
type Page struct {
	Entries []Entry
	Total   int
	Limit   int
	Offset  int
}

// GroupEntry はグループランキングの1行。
type GroupEntry struct {
	Rank   int
	UserID string
	Score  int
}

// Service はランキングのクエリを提供する。
// AddGroupScoreを除き状態を変更しない。
type Service struct {
	aggregates  repository.AggregateRepository
	groupScores repository.GroupScoreRepository
	contacts    repository.ContactRepository
}

// NewService はServiceを生成する。
func NewService(
	aggregates repository.AggregateRepository,
	groupScores repository.GroupScoreRepository,
	contacts repository.ContactRepository,
) *Service {
	return &Service{
		aggregates:  aggregates,
		groupScores: groupScores,
		contacts:    contacts,
	}
}

func entryOf(rank int, a *model.UserAggregate) Entry {
	return Entry{
		Rank:           rank,
		UserID:         a.UserID,
		TotalPoints:    a.TotalPoints,
		TasksCompleted: a.TasksCompleted,
		CurrentStreak:  a.CurrentStreak,
		LongestStreak:  a.LongestStreak,
	}
}

// Global は全体ランキングを返す。順位はoffset+位置（1始まり）。
// 集計を持たないユーザーは含まれない。limitが0の場合はDefaultLimitを使う。
func (s *Service) Global(ctx context.Context, limit, offset int) (*Page, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || limit > MaxLimit {
		return nil, model.NewValidationError(fmt.Sprintf("limitは1から%dの範囲で指定してください", MaxLimit))
	}
	if offset < 0 {
		return nil, model.NewValidationError("offsetは0以上で指定してください")
	}

	aggs, err := s.aggregates.ListRanked(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ランキングの取得に失敗しました: %w", err)
	}
	total, err := s.aggregates.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ランキング件数の取得に失敗しました: %w", err)
	}

	page := &Page{Entries: make([]Entry, 0, len(aggs)), Total: total, Limit: limit, Offset: offset}
	for i, a := range aggs {
		page.Entries = append(page.Entries, entryOf(offset+i+1, a))
	}
	return page, nil
}

// Position は全体ランキングにおけるユーザーの位置を返す。
// 集計を持たないユーザーは順位なしとしてnilを返す。
func (s *Service) Position(ctx context.Context, userID string) (*Entry, error) {
	rank, err := s.aggregates.RankOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("順位の取得に失敗しました: %w", err)
	}
	if rank == 0 {
		return nil, nil
	}

	agg, err := s.aggregates.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー集計の取得に失敗しました: %w", err)
	}
	if agg == nil {
		return nil, nil
	}
	e := entryOf(rank, agg)
	return &e, nil
}

// Contacts は承認済み連絡先と本人に限定したランキングを返す。
// 集計を持たないユーザーはすべて0として含める。
func (s *Service) Contacts(ctx context.Context, userID string) ([]Entry, error) {
	contactIDs, err := s.contacts.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("連絡先の取得に失敗しました: %w", err)
	}

	seen := map[string]bool{userID: true}
	ids := []string{userID}
	for _, id := range contactIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	aggs, err := s.aggregates.FindMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ユーザー集計の取得に失敗しました: %w", err)
	}
	byID := make(map[string]*model.UserAggregate, len(aggs))
	for _, a := range aggs {
		byID[a.UserID] = a
	}

	all := make([]*model.UserAggregate, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			all = append(all, a)
		} else {
			all = append(all, model.NewUserAggregate(id))
		}
	}
	sortRanked(all)

	entries := make([]Entry, len(all))
	for i, a := range all {
		entries[i] = entryOf(i+1, a)
	}
	return entries, nil
}

// sortRanked は全体ランキングと同じ順序（ポイント降順、完了数降順、ユーザーID昇順）で並べる。
func sortRanked(aggs []*model.UserAggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].TotalPoints != aggs[j].TotalPoints {
			return aggs[i].TotalPoints > aggs[j].TotalPoints
		}
		if aggs[i].TasksCompleted != aggs[j].TasksCompleted {
			return aggs[i].TasksCompleted > aggs[j].TasksCompleted
		}
		return aggs[i].UserID < aggs[j].UserID
	})
}

// Group はグループ単位のスコアランキングを返す。
// ユーザー集計とは独立したスコアで、スコア降順、同点はユーザーID昇順。
func (s *Service) Group(ctx context.Context, groupID string) ([]GroupEntry, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, model.NewValidationError("group_idは必須です")
	}

	scores, err := s.groupScores.List(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("グループスコアの取得に失敗しました: %w", err)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].UserID < scores[j].UserID
	})

	entries := make([]GroupEntry, len(scores))
	for i, sc := range scores {
		entries[i] = GroupEntry{Rank: i + 1, UserID: sc.UserID, Score: sc.Score}
	}
	return entries, nil
}

// AddGroupScore はグループ内ユーザーのスコアにdeltaを加算し、加算後の値を返す。
func (s *Service) AddGroupScore(ctx context.Context, groupID, userID string, delta int) (int, error) {
	if strings.TrimSpace(groupID) == "" {
		return 0, model.NewValidationError("group_idは必須です")
	}
	if strings.TrimSpace(userID) == "" {
		return 0, model.NewValidationError("user_idは必須です")
	}

	score, err := s.groupScores.Add(ctx, groupID, userID, delta)
	if err != nil {
		return 0, fmt.Errorf("グループスコアの更新に失敗しました: %w", err)
	}
	return score, nil
}
