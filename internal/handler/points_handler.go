package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
)

// defaultReportDays はfrom/to未指定時の集計日数（今日を含む）。
const defaultReportDays = 30

// PointsService はポイント台帳のレポートに必要なサービスインターフェース。
type PointsService interface {
	// History は[from, to]のユーザーの台帳エントリを日付昇順で返す。
	History(ctx context.Context, userID string, from, to time.Time) ([]*model.PointsLedgerEntry, error)
	// DailyTotals は[from, to]の日ごとの合計を返す。エントリのない日も0で含む。
	DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]model.DailyTotal, error)
}

// PointsHandler はポイント履歴のHTTPハンドラー。
type PointsHandler struct {
	service PointsService
	clock   model.Clock
	loc     *time.Location
}

// NewPointsHandler はPointsHandlerを生成する。
// locは日付パラメータを解釈するタイムゾーン。
func NewPointsHandler(service PointsService, clock model.Clock, loc *time.Location) *PointsHandler {
	if clock == nil {
		clock = model.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PointsHandler{service: service, clock: clock, loc: loc}
}

// pointsEntryResponse は台帳エントリのAPIレスポンス。
type pointsEntryResponse struct {
	ID        string    `json:"id"`
	Points    int       `json:"points"`
	Day       string    `json:"day"`
	CreatedAt time.Time `json:"created_at"`
}

// dailyTotalResponse は日別合計のAPIレスポンス。
type dailyTotalResponse struct {
	Day    string `json:"day"`
	Points int    `json:"points"`
	Tasks  int    `json:"tasks"`
}

// History は呼び出し元ユーザーのポイント履歴を返す。
// GET /api/me/points?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	from, to, err := h.parseRange(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	entries, err := h.service.History(r.Context(), userID, from, to)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]pointsEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = pointsEntryResponse{
			ID:        e.ID,
			Points:    e.Points,
			Day:       formatDay(e.Day),
			CreatedAt: e.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Daily は呼び出し元ユーザーの日別ポイント合計を返す。
// GET /api/me/points/daily?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *PointsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	from, to, err := h.parseRange(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	totals, err := h.service.DailyTotals(r.Context(), userID, from, to)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]dailyTotalResponse, len(totals))
	for i, d := range totals {
		resp[i] = dailyTotalResponse{Day: formatDay(d.Day), Points: d.Points, Tasks: d.Tasks}
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseRange はfrom/toクエリパラメータを解釈する。
// toの既定値は今日、fromの既定値はtoを含む直近defaultReportDays日の初日。
func (h *PointsHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	to := model.DayOf(h.clock.Now(), h.loc)
	if raw := q.Get("to"); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, model.NewValidationError("toはYYYY-MM-DD形式で指定してください")
		}
		to = t
	}

	from := to.AddDate(0, 0, -(defaultReportDays - 1))
	if raw := q.Get("from"); raw != "" {
		f, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, model.NewValidationError("fromはYYYY-MM-DD形式で指定してください")
		}
		from = f
	}

	return from, to, nil
}
