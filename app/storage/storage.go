// Package storage provides a storage for the verdict log on top of sql databases.
// The storage engine is a wrapper around sqlx.DB with additional functionality to work with the various types of database engines.
// Each table is represented by a struct, and each struct has a method to work the table with business logic for this data type.
package storage

import (
	"context"

	"github.com/spamd/spamd/app/storage/engine"
)

// New makes a verdicts storage for the connection url, sqlite file or postgres url
func New(ctx context.Context, connURL string) (*Verdicts, error) {
	db, err := engine.New(ctx, connURL)
	if err != nil {
		return nil, err
	}
	res, err := NewVerdicts(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return res, nil
}
