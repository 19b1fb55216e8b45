// Package store persists the pipeline's output: the append-only observation
// history, the scrape-attempt log, and read access to the catalog.
package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}
