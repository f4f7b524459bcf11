package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/gracechapelhq/gracechapel-backend/internal/users"
	"github.com/gracechapelhq/gracechapel-backend/pkg/config"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db"
	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	"github.com/gracechapelhq/gracechapel-backend/pkg/logger"
	"github.com/gracechapelhq/gracechapel-backend/pkg/security"
)

// Bootstraps a dashboard user. Intended for seeding the first admin account.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "createuser"})

	_ = godotenv.Load()

	email := flag.String("email", "", "user email")
	password := flag.String("password", "", "user password")
	name := flag.String("name", "", "display name")
	role := flag.String("role", string(enums.UserRoleAdmin), "user role: admin|member")
	flag.Parse()

	if *email == "" || *password == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "usage: createuser -email ... -password ... -name ... [-role admin|member]")
		os.Exit(1)
	}

	parsedRole, err := enums.ParseUserRole(*role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid role: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "createuser",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	hash, err := security.HashPassword(*password, cfg.Password)
	if err != nil {
		logg.Error(ctx, "failed to hash password", err)
		os.Exit(1)
	}

	repo := users.NewRepository(dbClient.DB())
	user := &models.User{
		Email:        *email,
		PasswordHash: hash,
		DisplayName:  *name,
		Role:         parsedRole,
	}
	if err := repo.Create(ctx, user); err != nil {
		logg.Error(ctx, "failed to create user", err)
		os.Exit(1)
	}

	fmt.Printf("created user %s (%s) as %s\n", user.Email, user.ID, user.Role)
}
