package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskrank/internal/model"
)

// MemoryStore はインメモリ実装のリポジトリ一式。
// STORE_DRIVER=memory での起動とテストで使用する。プロセス再起動で内容は失われる。
type MemoryStore struct {
	Aggregates  *MemoryAggregateRepo
	Ledger      *MemoryLedgerRepo
	Challenges  *MemoryChallengeRepo
	Progress    *MemoryProgressRepo
	GroupScores *MemoryGroupScoreRepo
	Contacts    *MemoryContactRepo
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Aggregates:  NewMemoryAggregateRepo(),
		Ledger:      NewMemoryLedgerRepo(),
		Challenges:  NewMemoryChallengeRepo(),
		Progress:    NewMemoryProgressRepo(),
		GroupScores: NewMemoryGroupScoreRepo(),
		Contacts:    NewMemoryContactRepo(),
	}
}

// dayKey は暦日の比較用キーを返す。DATEカラムと同じく時刻とタイムゾーンを無視する。
func dayKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// --- 集計 ---

// MemoryAggregateRepo はAggregateRepositoryのインメモリ実装。
type MemoryAggregateRepo struct {
	mu   sync.RWMutex
	aggs map[string]*model.UserAggregate
}

// NewMemoryAggregateRepo はMemoryAggregateRepoを生成する。
func NewMemoryAggregateRepo() *MemoryAggregateRepo {
	return &MemoryAggregateRepo{aggs: make(map[string]*model.UserAggregate)}
}

func (r *MemoryAggregateRepo) Find(ctx context.Context, userID string) (*model.UserAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg, ok := r.aggs[userID]
	if !ok {
		return nil, nil
	}
	return agg.Clone(), nil
}

func (r *MemoryAggregateRepo) Save(ctx context.Context, agg *model.UserAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.aggs[agg.UserID]
	// AddBadgesが先行した場合はVersion 0の仮の行が存在しうる
	persisted := exists && current.Version > 0
	switch {
	case agg.Version == 0 && persisted:
		return ErrVersionConflict
	case agg.Version != 0 && (!persisted || current.Version != agg.Version):
		return ErrVersionConflict
	}

	stored := agg.Clone()
	stored.Version = agg.Version + 1
	stored.UpdatedAt = time.Now().UTC()
	// バッジはAddBadgesでのみ追加する
	stored.Badges = make(map[model.BadgeID]bool)
	if exists {
		for id := range current.Badges {
			stored.Badges[id] = true
		}
	}
	r.aggs[agg.UserID] = stored

	agg.Version = stored.Version
	agg.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryAggregateRepo) AddBadges(ctx context.Context, userID string, badges []model.BadgeID, awardedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggs[userID]
	if !ok {
		agg = model.NewUserAggregate(userID)
		r.aggs[userID] = agg
	}
	for _, b := range badges {
		agg.Badges[b] = true
	}
	return nil
}

func (r *MemoryAggregateRepo) ListRanked(ctx context.Context, limit, offset int) ([]*model.UserAggregate, error) {
	all := r.sorted()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *MemoryAggregateRepo) FindMany(ctx context.Context, userIDs []string) ([]*model.UserAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.UserAggregate
	for _, id := range userIDs {
		if agg, ok := r.aggs[id]; ok && agg.Version > 0 {
			out = append(out, agg.Clone())
		}
	}
	return out, nil
}

func (r *MemoryAggregateRepo) RankOf(ctx context.Context, userID string) (int, error) {
	for i, agg := range r.sorted() {
		if agg.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (r *MemoryAggregateRepo) Count(ctx context.Context) (int, error) {
	return len(r.sorted()), nil
}

// sorted は保存済みの集計をランキング順に並べたコピーを返す。
func (r *MemoryAggregateRepo) sorted() []*model.UserAggregate {
	r.mu.RLock()
	out := make([]*model.UserAggregate, 0, len(r.aggs))
	for _, agg := range r.aggs {
		if agg.Version > 0 {
			out = append(out, agg.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		if out[i].TasksCompleted != out[j].TasksCompleted {
			return out[i].TasksCompleted > out[j].TasksCompleted
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// --- 台帳 ---

// MemoryLedgerRepo はLedgerRepositoryのインメモリ実装。
type MemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []model.PointsLedgerEntry
}

// NewMemoryLedgerRepo はMemoryLedgerRepoを生成する。
func NewMemoryLedgerRepo() *MemoryLedgerRepo {
	return &MemoryLedgerRepo{}
}

func (r *MemoryLedgerRepo) Append(ctx context.Context, entry *model.PointsLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.entries = append(r.entries, *entry)
	r.mu.Unlock()
	return nil
}

func (r *MemoryLedgerRepo) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]*model.PointsLedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lo, hi := dayKey(from), dayKey(to)
	var out []*model.PointsLedgerEntry
	for i := range r.entries {
		e := r.entries[i]
		if e.UserID != userID {
			continue
		}
		if k := dayKey(e.Day); k >= lo && k <= hi {
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return dayKey(out[i].Day) < dayKey(out[j].Day)
	})
	return out, nil
}

func (r *MemoryLedgerRepo) SumByUserInRange(ctx context.Context, from, to time.Time) ([]model.UserTotals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lo, hi := dayKey(from), dayKey(to)
	byUser := make(map[string]*model.UserTotals)
	for _, e := range r.entries {
		if k := dayKey(e.Day); k < lo || k > hi {
			continue
		}
		t, ok := byUser[e.UserID]
		if !ok {
			t = &model.UserTotals{UserID: e.UserID}
			byUser[e.UserID] = t
		}
		t.Points += e.Points
		t.Tasks++
	}

	out := make([]model.UserTotals, 0, len(byUser))
	for _, t := range byUser {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Len はエントリ数を返す。
func (r *MemoryLedgerRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// --- チャレンジ ---

// MemoryChallengeRepo はChallengeRepositoryのインメモリ実装。
// (kind, start_date)の一意性を保持し、PostgreSQLの一意制約と同じ振る舞いをする。
type MemoryChallengeRepo struct {
	mu         sync.RWMutex
	challenges map[string]*model.Challenge
}

// NewMemoryChallengeRepo はMemoryChallengeRepoを生成する。
func NewMemoryChallengeRepo() *MemoryChallengeRepo {
	return &MemoryChallengeRepo{challenges: make(map[string]*model.Challenge)}
}

func (r *MemoryChallengeRepo) FindByID(ctx context.Context, id string) (*model.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryChallengeRepo) ListActive(ctx context.Context) ([]*model.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Challenge
	for _, c := range r.challenges {
		if c.Active {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (r *MemoryChallengeRepo) Create(ctx context.Context, c *model.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.challenges {
		if existing.Kind == c.Kind && existing.StartDate.Equal(c.StartDate) {
			return ErrChallengeExists
		}
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	r.challenges[c.ID] = &cp
	return nil
}

func (r *MemoryChallengeRepo) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.challenges {
		if c.Active && c.EndDate.Before(now) {
			c.Active = false
			n++
		}
	}
	return n, nil
}

// All は全チャレンジを返す。
func (r *MemoryChallengeRepo) All() []*model.Challenge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Challenge, 0, len(r.challenges))
	for _, c := range r.challenges {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// --- チャレンジ進捗 ---

type progressKey struct {
	challengeID string
	userID      string
}

// MemoryProgressRepo はProgressRepositoryのインメモリ実装。
type MemoryProgressRepo struct {
	mu       sync.Mutex
	progress map[progressKey]*model.ChallengeProgress
}

// NewMemoryProgressRepo はMemoryProgressRepoを生成する。
func NewMemoryProgressRepo() *MemoryProgressRepo {
	return &MemoryProgressRepo{progress: make(map[progressKey]*model.ChallengeProgress)}
}

func (r *MemoryProgressRepo) Find(ctx context.Context, challengeID, userID string) (*model.ChallengeProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.progress[progressKey{challengeID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProgressRepo) Increment(ctx context.Context, challengeID, userID string, points, tasks int) (*model.ChallengeProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(challengeID, userID)
	p.PointsEarned += points
	p.TasksCompleted += tasks
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (r *MemoryProgressRepo) Overwrite(ctx context.Context, challengeID, userID string, points, tasks int) (*model.ChallengeProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(challengeID, userID)
	p.PointsEarned = points
	p.TasksCompleted = tasks
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (r *MemoryProgressRepo) MarkCompleted(ctx context.Context, challengeID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.progress[progressKey{challengeID, userID}]
	if !ok || p.Completed {
		return false, nil
	}
	p.Completed = true
	completedAt := at.UTC()
	p.CompletedAt = &completedAt
	return true, nil
}

func (r *MemoryProgressRepo) getOrCreate(challengeID, userID string) *model.ChallengeProgress {
	key := progressKey{challengeID, userID}
	p, ok := r.progress[key]
	if !ok {
		p = &model.ChallengeProgress{ChallengeID: challengeID, UserID: userID}
		r.progress[key] = p
	}
	return p
}

// --- グループスコア・連絡先 ---

// MemoryGroupScoreRepo はGroupScoreRepositoryのインメモリ実装。
type MemoryGroupScoreRepo struct {
	mu     sync.Mutex
	scores map[string]map[string]int
}

// NewMemoryGroupScoreRepo はMemoryGroupScoreRepoを生成する。
func NewMemoryGroupScoreRepo() *MemoryGroupScoreRepo {
	return &MemoryGroupScoreRepo{scores: make(map[string]map[string]int)}
}

func (r *MemoryGroupScoreRepo) Add(ctx context.Context, groupID, userID string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.scores[groupID]
	if !ok {
		g = make(map[string]int)
		r.scores[groupID] = g
	}
	g[userID] += delta
	return g[userID], nil
}

func (r *MemoryGroupScoreRepo) List(ctx context.Context, groupID string) ([]model.GroupScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.GroupScore
	for userID, score := range r.scores[groupID] {
		out = append(out, model.GroupScore{GroupID: groupID, UserID: userID, Score: score})
	}
	return out, nil
}

// MemoryContactRepo はContactRepositoryのインメモリ実装。
type MemoryContactRepo struct {
	mu       sync.RWMutex
	accepted map[string][]string
}

// NewMemoryContactRepo はMemoryContactRepoを生成する。
func NewMemoryContactRepo() *MemoryContactRepo {
	return &MemoryContactRepo{accepted: make(map[string][]string)}
}

// Accept はaとbを相互に承認済み連絡先として登録する。
func (r *MemoryContactRepo) Accept(a, b string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted[a] = append(r.accepted[a], b)
	r.accepted[b] = append(r.accepted[b], a)
}

func (r *MemoryContactRepo) ListAccepted(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.accepted[userID]...), nil
}

// compile-time interface check
var (
	_ AggregateRepository  = (*MemoryAggregateRepo)(nil)
	_ LedgerRepository     = (*MemoryLedgerRepo)(nil)
	_ ChallengeRepository  = (*MemoryChallengeRepo)(nil)
	_ ProgressRepository   = (*MemoryProgressRepo)(nil)
	_ GroupScoreRepository = (*MemoryGroupScoreRepo)(nil)
	_ ContactRepository    = (*MemoryContactRepo)(nil)
)
