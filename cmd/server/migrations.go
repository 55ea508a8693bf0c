package main

import (
	"fmt"

	"github.com/pressly/goose/v3"
)

// migrationsDir is relative to the working directory the server starts in.
const migrationsDir = "migrations"

// runMigrations applies any pending database migrations.
func (app *application) runMigrations() error {
	goose.SetLogger(gooseLogger{app})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(app.db, migrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// gooseLogger forwards goose output to the structured logger.
type gooseLogger struct {
	app *application
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.app.logger.Error(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.app.logger.Info(fmt.Sprintf(format, v...))
}
