package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/SignDrop/internal/auth"
	"github.com/dharsanguruparan/SignDrop/internal/config"
	"github.com/dharsanguruparan/SignDrop/internal/database"
	"github.com/dharsanguruparan/SignDrop/internal/logging"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/notify"
	"github.com/dharsanguruparan/SignDrop/internal/server"
	"github.com/dharsanguruparan/SignDrop/internal/signing"
	"github.com/dharsanguruparan/SignDrop/internal/users"
	"github.com/dharsanguruparan/SignDrop/internal/verification"
	"github.com/dharsanguruparan/SignDrop/internal/worker"
)

var errInvalidSignature = errors.New("signature does not match content")

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signdrop",
		Short: "SignDrop operator CLI",
		Long: `signdrop runs the SignDrop API and worker, applies database migrations,
verifies documents offline against their issued signature, and bootstraps
users and bearer tokens.

Configuration is read from SIGNDROP_* environment variables and an optional .env file.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newPurgeCmd(),
		newFingerprintCmd(),
		newVerifyCmd(),
		newTokenCmd(),
		newUserCmd(),
		newDevCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, nil, err
	}
	logging.UseJSON(cfg.Production())
	return cfg, logging.DefaultLogger(), nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}
			defer srv.Close()
			logger.Infow("signdrop listening", "addr", cfg.Address, "env", cfg.Environment)
			return srv.Serve(ctx)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume notification and purge tasks from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			comps, err := server.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()
			p := worker.NewProcessor(notify.LogDelivery(logger.Named("notify")), comps.Documents, logger.Named("worker"))
			return worker.Run(ctx, cfg, p, logger)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("migrate needs SIGNDROP_DATABASE_URL")
			}
			ctx := cmd.Context()
			if err := database.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			version, err := database.MigrationVersion(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
			return nil
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	var limit int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Reclaim the bytes of documents deleted longer ago than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.PurgeAfter
			}
			if limit <= 0 {
				limit = cfg.PurgeBatch
			}
			ctx := cmd.Context()
			comps, err := server.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			n, err := comps.Documents.Purge(ctx, time.Now().UTC().Add(-olderThan), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d documents\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention for soft-deleted documents (default SIGNDROP_PURGE_AFTER)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum documents to purge (default SIGNDROP_PURGE_BATCH)")
	return cmd
}

func newFingerprintCmd() *cobra.Command {
	var sign bool
	cmd := &cobra.Command{
		Use:   "fingerprint <file>",
		Short: "Print the SHA-256 fingerprint of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fp := signing.Fingerprint(content)
			out := cmd.OutOrStdout()
			if !sign {
				fmt.Fprintln(out, fp)
				return nil
			}
			signer, err := configuredSigner()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "fingerprint %s\nsignature   %s\n", fp, signer.Sign(fp))
			return nil
		},
	}
	cmd.Flags().BoolVar(&sign, "sign", false, "Also print the signature issued for this content")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file> <signature>",
		Short: "Check a file against the signature issued at upload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			signer, err := configuredSigner()
			if err != nil {
				return err
			}
			res := verification.NewService(signer, nil, nil, nil).Verify(content, args[1])
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint %s\nvalid       %t\n", res.Fingerprint, res.Valid)
			if !res.Valid {
				return errInvalidSignature
			}
			return nil
		},
	}
}

func configuredSigner() (*signing.Signer, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return signing.NewSigner(cfg.SigningSecret)
}

func newTokenCmd() *cobra.Command {
	var id, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user id and role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			r := model.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			token, err := auth.NewIssuer(cfg.JWTSecret, ttl).Issue(model.Identity{ID: id, Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "User id (subject)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "Role: user, manager or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default SIGNDROP_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the user directory",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var in users.CreateInput
	var role string
	var withToken bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user, typically the first admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("user add needs SIGNDROP_DATABASE_URL, the in-memory directory does not outlive this command")
			}
			ctx := cmd.Context()
			comps, err := server.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Close()

			in.Role = model.Role(role)
			return addUser(ctx, cmd, comps.Users, in, withToken, auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL))
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Contact email")
	cmd.Flags().StringVar(&role, "role", string(model.RoleUser), "Role: user, manager or admin")
	cmd.Flags().BoolVar(&withToken, "token", false, "Also print a bearer token for the new user")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func addUser(ctx context.Context, cmd *cobra.Command, dir *users.Service, in users.CreateInput, withToken bool, issuer *auth.Issuer) error {
	user, err := dir.Register(ctx, in)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "created %s user %s (%s)\n", user.Role, user.ID, user.Email)
	if withToken {
		token, err := issuer.Issue(user.Identity())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, token)
	}
	return nil
}

func newDevCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development helpers",
	}
	cmd.AddCommand(newTestCmd())
	return cmd
}

func newTestCmd() *cobra.Command {
	var race bool
	var cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = []string{"./..."}
			}
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			goArgs = append(goArgs, pkgs...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
