package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"todo-api/backend/internal/config"
	"todo-api/backend/internal/models"
	"todo-api/backend/internal/repositories"
	"todo-api/backend/internal/services"

	"github.com/gin-gonic/gin/binding"
	"github.com/spf13/cobra"
)

var (
	envFile     string
	autoMigrate bool

	newUsername  string
	newEmail     string
	newPassword  string
	newFirstName string
	newLastName  string

	rootCmd = &cobra.Command{
		Use:          "todo-api",
		Short:        "Owner-scoped to-do REST API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			a, err := newApp(cfg, logger, autoMigrate)
			if err != nil {
				logger.Error("startup failed", slog.String("error", err.Error()))
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			pool, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pool.Migrate(); err != nil {
				return err
			}
			logger.Info("schema migrated", slog.String("driver", cfg.Database.Driver))
			return nil
		},
	}

	createUserCmd = &cobra.Command{
		Use:   "createuser",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			pool, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			register := services.NewRegisterService(repositories.NewGormUserRepository(pool.DB), cfg.Auth.BCryptCost)
			user, err := createUser(cmd.Context(), register, services.RegistrationRequest{
				Username:  newUsername,
				Email:     newEmail,
				Password:  newPassword,
				FirstName: newFirstName,
				LastName:  newLastName,
			})
			if err != nil {
				return err
			}

			logger.Info("user created", slog.String("user_id", user.ID.String()), slog.String("username", user.Username))
			fmt.Fprintln(cmd.OutOrStdout(), user.ID.String())
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "migrate the schema before serving")

	createUserCmd.Flags().StringVarP(&newUsername, "username", "u", "", "username (required)")
	createUserCmd.Flags().StringVarP(&newPassword, "password", "p", "", "password, at least 8 characters (required)")
	createUserCmd.Flags().StringVar(&newEmail, "email", "", "email address")
	createUserCmd.Flags().StringVar(&newFirstName, "first-name", "", "first name")
	createUserCmd.Flags().StringVar(&newLastName, "last-name", "", "last name")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(serveCmd, migrateCmd, createUserCmd)
}

func loadRuntime() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// createUser runs the register endpoint's binding rules before handing the
// request to the service.
func createUser(ctx context.Context, register services.RegisterService, req services.RegistrationRequest) (*models.User, error) {
	if err := binding.Validator.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}
	return register.RegisterUser(ctx, req)
}
