package domain

import (
	"regexp"
	"time"
)

var (
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Gender — пол пользователя, как он приходит при регистрации.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Point — value object баланса поинтов. Арифметика возвращает новые значения,
// баланс никогда не уходит в минус.
type Point struct {
	Balance int64
}

// Add возвращает баланс, увеличенный на amount.
func (p Point) Add(amount int64) (Point, error) {
	if amount < 0 {
		return Point{}, ErrAmountNegative
	}
	return Point{Balance: p.Balance + amount}, nil
}

// Subtract возвращает баланс, уменьшенный на amount,
// либо ErrInsufficientPoint при нехватке средств.
func (p Point) Subtract(amount int64) (Point, error) {
	if amount < 0 {
		return Point{}, ErrAmountNegative
	}
	if p.Balance < amount {
		return Point{}, ErrInsufficientPoint
	}
	return Point{Balance: p.Balance - amount}, nil
}

// User — агрегат пользователя. Point хранится как колонка на строке пользователя.
type User struct {
	ID        int64
	UserID    string
	Email     string
	BirthDate time.Time
	Gender    Gender
	Point     Point
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет инварианты пользователя при создании.
func (u *User) Validate() []error {
	var errs []error

	if !userIDPattern.MatchString(u.UserID) {
		errs = append(errs, ErrUserIDInvalid)
	}
	if !emailPattern.MatchString(u.Email) {
		errs = append(errs, ErrEmailInvalid)
	}
	if u.Point.Balance < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}
