package domain

import "time"

// PeriodType — горизонт материализованного рейтинга.
type PeriodType string

const (
	PeriodWeekly  PeriodType = "WEEKLY"
	PeriodMonthly PeriodType = "MONTHLY"
)

// Весовые коэффициенты score = 0.3*like + 0.5*sales + 0.2*view.
const (
	RankLikeWeight  = 0.3
	RankSalesWeight = 0.5
	RankViewWeight  = 0.2
)

// TopRankLimit — материализуются только первые 100 позиций.
const TopRankLimit = 100

// ProductRankScore — временная строка агрегации; пересчитывается каждым прогоном.
type ProductRankScore struct {
	ProductID  int64
	LikeCount  int64
	SalesCount int64
	ViewCount  int64
	Score      float64
}

// Recalculate пересчитывает Score из накопленных счётчиков.
func (s *ProductRankScore) Recalculate() {
	s.Score = RankLikeWeight*float64(s.LikeCount) +
		RankSalesWeight*float64(s.SalesCount) +
		RankViewWeight*float64(s.ViewCount)
}

// ProductRank — строка материализованного лидерборда.
// Уникальность: (PeriodType, PeriodStart, ProductID).
type ProductRank struct {
	PeriodType  PeriodType
	PeriodStart time.Time
	ProductID   int64
	Rank        int
	LikeCount   int64
	SalesCount  int64
	ViewCount   int64
	Score       float64
}

// PeriodRange выводит [start, end) для периода, содержащего targetDate:
// WEEKLY — понедельник недели, MONTHLY — первое число месяца.
func PeriodRange(periodType PeriodType, targetDate time.Time) (time.Time, time.Time) {
	day := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())

	switch periodType {
	case PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		// ISO-неделя: Monday=1 ... Sunday=7.
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := day.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7)
	}
}
