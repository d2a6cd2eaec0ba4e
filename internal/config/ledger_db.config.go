package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DatabaseURL builds the DSN from DB_* variables. DB_DSN wins when set.
func DatabaseURL() string {
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		os.Getenv("DB_NAME"),
	)
}

func ConnectDB(logger *zap.Logger) (*pgxpool.Pool, error) {
	dbURL := DatabaseURL()

	var dbpool *pgxpool.Pool
	var err error

	maxRetries := 5
	delay := 2 * time.Second

	for i := 1; i <= maxRetries; i++ {
		logger.Info("connecting to database", zap.Int("attempt", i), zap.Int("max_attempts", maxRetries))

		config, parseErr := pgxpool.ParseConfig(dbURL)
		if parseErr != nil {
			logger.Error("failed to parse database config", zap.Error(parseErr))
			return nil, parseErr
		}

		// tuning pool settings
		config.MaxConns = 50
		config.MinConns = 5
		config.MaxConnLifetime = time.Hour
		config.MaxConnIdleTime = 5 * time.Minute

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		dbpool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			pingErr := dbpool.Ping(ctx)
			cancel()
			if pingErr == nil {
				logger.Info("connected to database")
				return dbpool, nil
			}
			dbpool.Close()
			err = fmt.Errorf("ping failed: %w", pingErr)
		} else {
			cancel()
		}

		logger.Warn("database connection failed", zap.Error(err))

		if i < maxRetries {
			logger.Info("retrying database connection", zap.Duration("delay", delay))
			time.Sleep(delay)
			delay *= 2 // exponential backoff
		}
	}

	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", maxRetries, err)
}
