// Package pgstore implements store.Store on PostgreSQL using the pgx
// database/sql driver. Schema changes ship as embedded goose migrations.
package pgstore
