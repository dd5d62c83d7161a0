package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

type userRepository struct{ q querier }

const userColumns = `id, user_id, email, birth_date, gender, point_balance, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var gender string
	err := row.Scan(&u.ID, &u.UserID, &u.Email, &u.BirthDate, &gender, &u.Point.Balance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Gender = domain.Gender(gender)
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO users (user_id, email, birth_date, gender, point_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`, user.UserID, user.Email, user.BirthDate, string(user.Gender), user.Point.Balance, user.CreatedAt).Scan(&user.ID)
	if isUniqueViolation(err) {
		return domain.User{}, domain.ErrDuplicateUser
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *userRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *userRepository) GetForUpdate(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (r *userRepository) Save(ctx context.Context, user domain.User) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET email = $2, point_balance = $3, updated_at = $4
		WHERE id = $1
	`, user.ID, user.Email, user.Point.Balance, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

var _ domain.UserRepository = (*userRepository)(nil)
