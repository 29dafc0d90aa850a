package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

const foreignKeyViolation = "23503"

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const selectProducts = `
	SELECT p.id, p.name, p.price, p.image_url, c.id, c.name
	FROM products p
	JOIN categories c ON c.id = p.category_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p        domain.Product
		imageURL sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &imageURL, &p.Category.ID, &p.Category.Name); err != nil {
		return domain.Product{}, err
	}
	if imageURL.Valid {
		p.ImageURL = &imageURL.String
	}
	return p, nil
}

func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, selectProducts+` ORDER BY p.name`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list products", Err: err}
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scan product", Err: err}
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list products", Err: err}
	}

	return products, nil
}

// FindByIDs resolves ids to their current product records. Ids with no
// product are absent from the result; callers decide how to treat them.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	rows, err := r.db.QueryContext(ctx, selectProducts+` WHERE p.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, &domain.PersistenceError{Op: "find products", Err: err}
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scan product", Err: err}
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "find products", Err: err}
	}

	return products, nil
}

// CreateProduct inserts p and fills in its id and category name.
func (r *ProductRepository) CreateProduct(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()

	err := r.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO products (id, name, price, image_url, category_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			RETURNING category_id
		)
		SELECT c.name FROM inserted JOIN categories c ON c.id = inserted.category_id
	`, p.ID, p.Name, p.Price, p.ImageURL, p.Category.ID).Scan(&p.Category.Name)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewValidationError("category_id", "unknown category")
		}
		return &domain.PersistenceError{Op: "create product", Err: err}
	}

	return nil
}

// DeleteProduct removes the product row and calls release with the removed
// product before committing. The row comes back if the delete is rejected
// or release fails, so release only runs once nothing references the product.
func (r *ProductRepository) DeleteProduct(ctx context.Context, id string, release func(context.Context, domain.Product) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin delete transaction", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProduct(tx.QueryRowContext(ctx, selectProducts+` WHERE p.id = $1 FOR UPDATE OF p`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return &domain.PersistenceError{Op: "lock product", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrConflict
		}
		return &domain.PersistenceError{Op: "delete product", Err: err}
	}

	if release != nil {
		if err := release(ctx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit product delete", Err: err}
	}
	return nil
}

func (r *ProductRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, COUNT(p.id)
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		GROUP BY c.id, c.name
		ORDER BY c.name
	`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list categories", Err: err}
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ProductCount); err != nil {
			return nil, &domain.PersistenceError{Op: "scan category", Err: err}
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list categories", Err: err}
	}

	return categories, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
