package domain

import "time"

// ProductMetrics — денормализованные счётчики товара для read-model.
// Version — версия последнего применённого like-события: outbox нумерует
// события по агрегату (like, productId), поэтому внутри одного товара эта
// последовательность монотонна и защищает likeCount от повторной доставки
// и переупорядочивания. Версии заказов и просмотров принадлежат другим
// агрегатам и с Version несравнимы: salesCount и viewCount дедуплицируются
// таблицей event_handled, а не версией.
type ProductMetrics struct {
	ProductID  int64
	LikeCount  int64
	SalesCount int64
	ViewCount  int64
	Version    int64
	UpdatedAt  time.Time
}

// fresh проверяет version-gate like-последовательности и продвигает Version.
func (m *ProductMetrics) fresh(eventVersion int64, now time.Time) bool {
	if eventVersion <= m.Version {
		return false
	}
	m.Version = eventVersion
	m.UpdatedAt = now
	return true
}

// ApplyLikeAdded увеличивает likeCount, если событие свежее текущей версии.
func (m *ProductMetrics) ApplyLikeAdded(eventVersion int64, now time.Time) bool {
	if !m.fresh(eventVersion, now) {
		return false
	}
	m.LikeCount++
	return true
}

// ApplyLikeRemoved уменьшает likeCount, не опуская его ниже нуля.
func (m *ProductMetrics) ApplyLikeRemoved(eventVersion int64, now time.Time) bool {
	if !m.fresh(eventVersion, now) {
		return false
	}
	if m.LikeCount > 0 {
		m.LikeCount--
	}
	return true
}

// ApplySale добавляет quantity к salesCount; неположительное количество
// игнорируется. Like-версию не трогает: заказ — другой агрегат.
func (m *ProductMetrics) ApplySale(quantity int64, now time.Time) bool {
	if quantity <= 0 {
		return false
	}
	m.SalesCount += quantity
	m.UpdatedAt = now
	return true
}

// ApplyView увеличивает viewCount. Like-версию не трогает.
func (m *ProductMetrics) ApplyView(now time.Time) bool {
	m.ViewCount++
	m.UpdatedAt = now
	return true
}
