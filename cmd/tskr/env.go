package main

import (
	"database/sql"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jonocairns/tskr/internal/config"
	"github.com/jonocairns/tskr/internal/database"
	"github.com/jonocairns/tskr/internal/logging"
)

// env is what every subcommand needs: configuration, a logger, and an
// open database.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	closer io.Closer
}

func setup(cmd *cobra.Command) (*env, error) {
	files, err := cmd.Flags().GetStringSlice("env-file")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	logger, closer := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		closer.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: db, closer: closer}, nil
}

func (e *env) Close() {
	e.db.Close()
	e.closer.Close()
}
