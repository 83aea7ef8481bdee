// Package postgres provides PostgreSQL implementations of the store
// interfaces defined in internal/store, using database/sql over the
// pgx driver. Database constraint violations are mapped to store
// sentinel errors so consumers never depend on driver error codes.
package postgres
