// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var DB *sql.DB

func Init(log *zap.Logger) {
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, pass, host, port, name,
	)

	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("failed to connect to DB", zap.Error(err))
	}

	if err = DB.Ping(); err != nil {
		log.Fatal("failed to ping DB", zap.Error(err))
	}

	log.Info("✅ connected to database", zap.String("host", host), zap.String("db", name))
}
