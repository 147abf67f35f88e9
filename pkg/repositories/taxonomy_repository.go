package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-hq/portal-engine/pkg/database"
	"github.com/mentora-hq/portal-engine/pkg/models"
)

// TaxonomyRepository defines data access for the workflow and book taxonomies.
// These are platform-level reference tables (no org scoping); the import
// pipeline both reads them for resolution and creates missing entries at
// commit time. Delete methods exist solely for saga compensation.
type TaxonomyRepository interface {
	ListCategories(ctx context.Context) ([]*models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	ListDepartments(ctx context.Context) ([]*models.Department, error)
	CreateDepartment(ctx context.Context, department *models.Department) error
	DeleteDepartment(ctx context.Context, id uuid.UUID) error

	ListBookCategories(ctx context.Context) ([]*models.BookCategory, error)
	CreateBookCategory(ctx context.Context, category *models.BookCategory) error
	DeleteBookCategory(ctx context.Context, id uuid.UUID) error

	ListBooks(ctx context.Context) ([]*models.Book, error)
	CreateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, id uuid.UUID) error
}

type taxonomyRepository struct{}

// NewTaxonomyRepository creates a new taxonomy repository.
func NewTaxonomyRepository() TaxonomyRepository {
	return &taxonomyRepository{}
}

func (r *taxonomyRepository) ListCategories(ctx context.Context) ([]*models.Category, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &c)
	}

	return categories, rows.Err()
}

func (r *taxonomyRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	category.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx,
		`INSERT INTO categories (id, name, created_at) VALUES ($1, $2, $3)`,
		category.ID, category.Name, category.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}

	return nil
}

func (r *taxonomyRepository) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "categories", id)
}

func (r *taxonomyRepository) ListDepartments(ctx context.Context) ([]*models.Department, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT id, category_id, name, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var departments []*models.Department
	for rows.Next() {
		var d models.Department
		if err := rows.Scan(&d.ID, &d.CategoryID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		departments = append(departments, &d)
	}

	return departments, rows.Err()
}

func (r *taxonomyRepository) CreateDepartment(ctx context.Context, department *models.Department) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if department.ID == uuid.Nil {
		department.ID = uuid.New()
	}
	department.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx,
		`INSERT INTO departments (id, category_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		department.ID, department.CategoryID, department.Name, department.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create department: %w", err)
	}

	return nil
}

func (r *taxonomyRepository) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "departments", id)
}

func (r *taxonomyRepository) ListBookCategories(ctx context.Context) ([]*models.BookCategory, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT id, department, name, created_at FROM book_categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list book categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.BookCategory
	for rows.Next() {
		var c models.BookCategory
		if err := rows.Scan(&c.ID, &c.Department, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book category: %w", err)
		}
		categories = append(categories, &c)
	}

	return categories, rows.Err()
}

func (r *taxonomyRepository) CreateBookCategory(ctx context.Context, category *models.BookCategory) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	category.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx,
		`INSERT INTO book_categories (id, department, name, created_at) VALUES ($1, $2, $3, $4)`,
		category.ID, category.Department, category.Name, category.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book category: %w", err)
	}

	return nil
}

func (r *taxonomyRepository) DeleteBookCategory(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "book_categories", id)
}

func (r *taxonomyRepository) ListBooks(ctx context.Context) ([]*models.Book, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT id, category_id, name, author, created_at FROM books ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(&b.ID, &b.CategoryID, &b.Name, &b.Author, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, &b)
	}

	return books, rows.Err()
}

func (r *taxonomyRepository) CreateBook(ctx context.Context, book *models.Book) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	book.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx,
		`INSERT INTO books (id, category_id, name, author, created_at) VALUES ($1, $2, $3, $4, $5)`,
		book.ID, book.CategoryID, book.Name, book.Author, book.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}

	return nil
}

func (r *taxonomyRepository) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return r.deleteByID(ctx, "books", id)
}

// deleteByID removes one reference row. Used only by saga compensation,
// so a missing row is not an error (already cleaned up).
func (r *taxonomyRepository) deleteByID(ctx context.Context, table string, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return nil
}
