package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

type productRepository struct{ q querier }

const productColumns = `id, brand_id, name, price, stock, like_count, created_at, updated_at`

func scanProduct(row *sql.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO products (brand_id, name, price, stock, like_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`, product.BrandID, product.Name, product.Price, product.Stock, product.LikeCount, product.CreatedAt).Scan(&product.ID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	return scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *productRepository) GetForUpdate(ctx context.Context, id int64) (domain.Product, error) {
	return scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (r *productRepository) Save(ctx context.Context, product domain.Product) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, stock = $4, like_count = $5, updated_at = $6
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.Stock, product.LikeCount, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product %d: %w", product.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) List(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	orderBy := "created_at DESC, id DESC"
	switch query.Sort {
	case domain.SortPriceAsc:
		orderBy = "price ASC, id ASC"
	case domain.SortLikesDesc:
		orderBy = "like_count DESC, id ASC"
	}

	size := query.Size
	if size <= 0 {
		size = 20
	}
	offset := query.Page * size

	where := ""
	args := []any{size, offset}
	if query.BrandID != 0 {
		where = "WHERE brand_id = $3"
		args = append(args, query.BrandID)
	}

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM products %s ORDER BY %s LIMIT $1 OFFSET $2
	`, productColumns, where, orderBy), args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, size)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &p.Price, &p.Stock, &p.LikeCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

type brandRepository struct{ q querier }

func (r *brandRepository) Create(ctx context.Context, brand domain.Brand) (domain.Brand, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO brands (name, created_at) VALUES ($1, $2) RETURNING id
	`, brand.Name, brand.CreatedAt).Scan(&brand.ID)
	if err != nil {
		return domain.Brand{}, fmt.Errorf("insert brand: %w", err)
	}
	return brand, nil
}

func (r *brandRepository) Get(ctx context.Context, id int64) (domain.Brand, error) {
	var b domain.Brand
	err := r.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM brands WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Brand{}, domain.ErrBrandNotFound
	}
	if err != nil {
		return domain.Brand{}, fmt.Errorf("scan brand: %w", err)
	}
	return b, nil
}

func (r *brandRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.Brand, error) {
	if len(ids) == 0 {
		return map[int64]domain.Brand{}, nil
	}

	rows, err := r.q.QueryContext(ctx, `SELECT id, name, created_at FROM brands WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("batch get brands: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]domain.Brand, len(ids))
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan brand row: %w", err)
		}
		result[b.ID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate brands: %w", err)
	}
	return result, nil
}

type likeRepository struct{ q querier }

func (r *likeRepository) Add(ctx context.Context, like domain.Like) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO likes (user_id, product_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, like.UserID, like.ProductID, like.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (r *likeRepository) Remove(ctx context.Context, userID, productID int64) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		DELETE FROM likes WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (r *likeRepository) Count(ctx context.Context, productID int64) (int64, error) {
	var count int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE product_id = $1`, productID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return count, nil
}

var (
	_ domain.ProductRepository = (*productRepository)(nil)
	_ domain.BrandRepository   = (*brandRepository)(nil)
	_ domain.LikeRepository    = (*likeRepository)(nil)
)
