package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"voice-relay/internal/auth"
	"voice-relay/internal/config"
	"voice-relay/internal/rbac"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// loadAuth is swapped in tests.
var loadAuth = config.LoadAuth

func newRootCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Mint a bearer token for the calls API",
		Long: "Signs an access token with AUTH_JWT_SECRET (read from the environment or .env).\n" +
			"Roles: viewer (read calls), operator (read + place calls), super_admin.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssue(cmd, subject, role, ttl)
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "token subject, e.g. the client name")
	cmd.Flags().StringVarP(&role, "role", "r", rbac.RoleViewer, "role: viewer, operator or super_admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default AUTH_ACCESS_TTL or 12h)")
	_ = cmd.MarkFlagRequired("subject")

	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newManager() (*auth.Manager, error) {
	cfg, err := loadAuth()
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is not set")
	}
	return auth.NewManager(cfg)
}

func runIssue(cmd *cobra.Command, subject, role string, ttl time.Duration) error {
	if !rbac.IsKnownRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	m, err := newManager()
	if err != nil {
		return err
	}
	tok, err := m.Issue(time.Now(), subject, role, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a token and print its subject, role and expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			claims, err := m.Verify(args[0], time.Now())
			if err != nil {
				return fmt.Errorf("invalid token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subject: %s\nrole: %s\nexpires: %s\n",
				claims.Subject, claims.Role, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "issue-token %s (commit: %s)\n", Version, Commit)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
