package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ats-auth/internal/auth"
	"github.com/spec-kit/ats-auth/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "authctl",
		Short:        "Operator tooling for the auth service",
		SilenceUsage: true,
	}
	root.AddCommand(newServiceTokenCmd(), newHashPasswordCmd(), newVerifyCmd())
	return root
}

func loadTokenManager() (*auth.TokenManager, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	tm := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  cfg.Auth.JWTSecret,
		RefreshSecret: cfg.Auth.JWTRefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL(),
		RefreshTTL:    cfg.Auth.RefreshTTL(),
		ServiceTTL:    cfg.Auth.ServiceTTL(),
	})
	return tm, cfg, nil
}

// service-token mints the first token a service uses before it can call
// /api/auth/generate itself.
func newServiceTokenCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "service-token",
		Short: "Mint a bootstrap service token with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			tm, _, err := loadTokenManager()
			if err != nil {
				return err
			}
			token, err := tm.GenerateServiceToken(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "service name embedded in the token")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for seeding users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadTokenManager()
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(args[0], cfg.Auth.BcryptCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	var service bool
	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify an access token (or a service token with --service) and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, _, err := loadTokenManager()
			if err != nil {
				return err
			}
			verify := tm.VerifyAccess
			if service {
				verify = tm.VerifyServiceToken
			}
			claims, err := verify(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(claims, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&service, "service", false, "treat the token as a service token")
	return cmd
}
