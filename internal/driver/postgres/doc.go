// Package postgres implements sqlpool.Driver on github.com/jackc/pgx/v5.
//
// A Socket value is the directory holding the server socket, as with libpq;
// pgx appends ".s.PGSQL.<port>" itself.
package postgres
