// Package mysql implements sqlpool.Driver on github.com/go-sql-driver/mysql.
//
// Every RawConn owns a private *sql.DB capped at one connection, so the pool
// above keeps full control of the socket lifecycle while database/sql still
// handles statement preparation and argument conversion.
//
// The connection-lost codes 2006 and 2013 are client-side codes in the C client.
// go-sql-driver never reports them as *mysql.MySQLError; it surfaces
// mysql.ErrInvalidConn or driver.ErrBadConn instead, which the Classifier
// treats as connection-lost regardless of the configured code set.
package mysql
