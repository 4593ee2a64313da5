package business

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a business ID has no registration at all.
// "Registered but no usage yet" is not this error; it is an empty result.
var ErrNotFound = errors.New("business not found")

// Business is a metered tenant. Gabelle does not own tenant lifecycle; this
// registry only mirrors enough of it to tell an unknown business apart from
// one that has simply recorded no usage.
type Business struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides database operations for the business registry.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create registers a business.
func (s *Store) Create(ctx context.Context, name string) (*Business, error) {
	b := &Business{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO businesses (name) VALUES ($1)
		 RETURNING id, name, created_at`,
		name,
	).Scan(&b.ID, &b.Name, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating business: %w", err)
	}
	return b, nil
}

// Get retrieves a business by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Business, error) {
	b := &Business{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM businesses WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Name, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("business %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting business: %w", err)
	}
	return b, nil
}

// Exists reports whether the business is registered.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM businesses WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking business existence: %w", err)
	}
	return exists, nil
}

// List returns all registered businesses ordered by ID.
func (s *Store) List(ctx context.Context) ([]*Business, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM businesses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing businesses: %w", err)
	}
	defer rows.Close()

	var businesses []*Business
	for rows.Next() {
		b := &Business{}
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning business row: %w", err)
		}
		businesses = append(businesses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating business rows: %w", err)
	}
	return businesses, nil
}
