package domain

import "time"

// Product — агрегат товара. LikeCount денормализован и обновляется
// консьюмером событий, то есть согласован только eventually.
type Product struct {
	ID        int64
	BrandID   int64
	Name      string
	Price     int64
	Stock     int64
	LikeCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет инварианты товара.
func (p *Product) Validate() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameEmpty)
	}
	if p.Price < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}

// DecreaseStock списывает quantity со склада.
// Инвариант: Stock никогда не опускается ниже нуля.
func (p *Product) DecreaseStock(quantity int64) error {
	if quantity <= 0 {
		return ErrQuantityInvalid
	}
	if p.Stock < quantity {
		return ErrInsufficientStock
	}
	p.Stock -= quantity
	return nil
}

// IncreaseStock возвращает quantity на склад (компенсация отмены).
func (p *Product) IncreaseStock(quantity int64) error {
	if quantity <= 0 {
		return ErrQuantityInvalid
	}
	p.Stock += quantity
	return nil
}

// Brand — справочная сущность; после создания считается неизменяемой.
type Brand struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Like — отметка "нравится": пара (userID, productID) уникальна.
type Like struct {
	UserID    int64
	ProductID int64
	CreatedAt time.Time
}
