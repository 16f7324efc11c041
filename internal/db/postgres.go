package db

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open opens a Postgres connection using the given DSN. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenGorm opens a Postgres connection and wraps it in a gorm DB for the stores.
// The underlying *sql.DB is owned by gorm; close it via sqlDB, _ := g.DB(); sqlDB.Close().
func OpenGorm(dsn string) (*gorm.DB, error) {
	sqlDB, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	g, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		// Unique-violation errors surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return g, nil
}
