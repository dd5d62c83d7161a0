package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// querier покрывает общий интерфейс *sql.DB, *sql.Tx и *sql.Conn:
// репозитории работают поверх него и не знают, в транзакции они или нет.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func newRepositories(q querier) domain.Repositories {
	return domain.Repositories{
		Users:      &userRepository{q: q},
		Products:   &productRepository{q: q},
		Brands:     &brandRepository{q: q},
		Likes:      &likeRepository{q: q},
		Orders:     &orderRepository{q: q},
		Payments:   &paymentRepository{q: q},
		Coupons:    &couponRepository{q: q},
		Outbox:     &outboxRepository{q: q},
		Handled:    &eventHandledRepository{q: q},
		Metrics:    &metricsRepository{q: q},
		RankScores: &rankScoreRepository{q: q},
		Ranks:      &rankRepository{q: q},
	}
}

// Within выполняет fn в одной транзакции READ COMMITTED: бизнес-мутация
// и её outbox-строки коммитятся атомарно.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, r domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Repositories возвращает набор репозиториев поверх пула соединений —
// для чтений, которым не нужна транзакция (листинги, relay, батчи).
func (s *Store) Repositories() domain.Repositories {
	return newRepositories(s.db)
}

var _ domain.UnitOfWork = (*Store)(nil)
