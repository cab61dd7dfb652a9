package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitchenops/backoffice/internal/app"
	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/platform/db"
	"github.com/kitchenops/backoffice/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping seed")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	file := flag.String("file", cfg.CatalogSeedFile, "permission catalog seed file")
	dryRun := flag.Bool("dry-run", false, "validate the seed file without writing")
	adminEmail := flag.String("admin-email", "", "ensure a platform administrator with this email exists")
	flag.Parse()

	seed, err := permissions.LoadSeedFile(*file)
	if err != nil {
		logger.Error("load seed", slog.String("file", *file), slog.Any("error", err))
		os.Exit(1)
	}
	perms, err := seed.Flatten()
	if err != nil {
		logger.Error("invalid seed", slog.String("file", *file), slog.Any("error", err))
		os.Exit(1)
	}
	if *dryRun {
		fmt.Printf("%s: %d permissions ok\n", *file, len(perms))
		return
	}

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := permissions.NewRepository(pool).Upsert(ctx, perms); err != nil {
		logger.Error("upsert permissions", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("permission catalog seeded", slog.Int("count", len(perms)))

	if email := strings.ToLower(strings.TrimSpace(*adminEmail)); email != "" {
		if err := ensureAdmin(ctx, pool, email); err != nil {
			logger.Error("ensure admin", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("admin ensured", slog.String("email", email))
	}
}

func ensureAdmin(ctx context.Context, pool *pgxpool.Pool, email string) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, role_tag, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (email) DO UPDATE SET role_tag = EXCLUDED.role_tag, is_active = TRUE`,
		id, email, shared.RoleTagAdmin)
	return err
}
