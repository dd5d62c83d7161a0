package domain

import (
	"testing"
	"time"
)

func TestMetricsLikeVersionGate(t *testing.T) {
	now := time.Now().UTC()
	m := ProductMetrics{ProductID: 1}

	if !m.ApplyLikeAdded(1, now) {
		t.Fatal("version 1 must apply on fresh metrics")
	}
	if m.LikeCount != 1 || m.Version != 1 {
		t.Errorf("expected likes=1 version=1, got %d/%d", m.LikeCount, m.Version)
	}

	// Повторная доставка той же версии и более старые версии игнорируются.
	if m.ApplyLikeAdded(1, now) {
		t.Error("duplicate version must be rejected")
	}
	if m.ApplyLikeRemoved(0, now) {
		t.Error("stale version must be rejected")
	}
	if m.LikeCount != 1 {
		t.Errorf("counter must not move on rejected events, got %d", m.LikeCount)
	}

	if !m.ApplyLikeRemoved(2, now) {
		t.Fatal("version 2 must apply")
	}
	if m.LikeCount != 0 || m.Version != 2 {
		t.Errorf("expected likes=0 version=2, got %d/%d", m.LikeCount, m.Version)
	}
}

func TestMetricsSalesAndViewsIgnoreLikeVersion(t *testing.T) {
	now := time.Now().UTC()
	m := ProductMetrics{ProductID: 1, Version: 5}

	// Заказы и просмотры нумеруются по своим агрегатам: их версии
	// несравнимы с like-последовательностью и не проходят через gate.
	if !m.ApplySale(2, now) {
		t.Fatal("sale must apply regardless of the like version")
	}
	if !m.ApplySale(3, now) {
		t.Fatal("a second order's sale must apply as well")
	}
	if !m.ApplyView(now) {
		t.Fatal("view must apply regardless of the like version")
	}

	if m.SalesCount != 5 || m.ViewCount != 1 {
		t.Errorf("expected sales=5 views=1, got %d/%d", m.SalesCount, m.ViewCount)
	}
	if m.Version != 5 {
		t.Errorf("sales and views must not advance the like version, got %d", m.Version)
	}
}

func TestMetricsLikeCountNeverNegative(t *testing.T) {
	now := time.Now().UTC()
	m := ProductMetrics{ProductID: 1}

	if !m.ApplyLikeRemoved(1, now) {
		t.Fatal("remove must apply and advance version")
	}
	if m.LikeCount != 0 {
		t.Errorf("like count must stay at zero, got %d", m.LikeCount)
	}
	if m.Version != 1 {
		t.Errorf("version must advance even when counter is clamped, got %d", m.Version)
	}
}

func TestMetricsApplySaleRejectsNonPositiveQuantity(t *testing.T) {
	now := time.Now().UTC()
	m := ProductMetrics{ProductID: 1}

	if m.ApplySale(0, now) {
		t.Error("zero quantity must be rejected")
	}
	if m.SalesCount != 0 {
		t.Errorf("rejected sale must not move the counter, got %d", m.SalesCount)
	}
}

func TestRankScoreRecalculate(t *testing.T) {
	s := ProductRankScore{ProductID: 1, LikeCount: 10, SalesCount: 4, ViewCount: 100}
	s.Recalculate()

	want := 0.3*10 + 0.5*4 + 0.2*100
	if s.Score != want {
		t.Errorf("expected score %f, got %f", want, s.Score)
	}
}

func TestPeriodRangeWeekly(t *testing.T) {
	// 2026-08-19 — среда; неделя начинается в понедельник 2026-08-17.
	target := time.Date(2026, 8, 19, 15, 30, 0, 0, time.UTC)
	start, end := PeriodRange(PeriodWeekly, target)

	if !start.Equal(time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected Monday 2026-08-17, got %s", start)
	}
	if !end.Equal(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected exclusive end 2026-08-24, got %s", end)
	}

	// Воскресенье принадлежит той же неделе.
	sunday := time.Date(2026, 8, 23, 23, 59, 0, 0, time.UTC)
	start2, _ := PeriodRange(PeriodWeekly, sunday)
	if !start2.Equal(start) {
		t.Errorf("sunday must map to the same week start, got %s", start2)
	}
}

func TestPeriodRangeMonthly(t *testing.T) {
	target := time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)
	start, end := PeriodRange(PeriodMonthly, target)

	if !start.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2026-08-01, got %s", start)
	}
	if !end.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected exclusive end 2026-09-01, got %s", end)
	}
}
