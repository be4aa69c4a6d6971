package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spinwish/internal/auth"
)

func init() {
	tokenCmd.Flags().String("user", "", "user id (required)")
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.Flags().String("role", auth.RoleUser, "role: user, dj or admin")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

// tokenCmd mints bearer tokens for local testing. Production tokens come
// from the account service.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		switch role {
		case auth.RoleUser, auth.RolePerformer, auth.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", role)
		}

		token, err := auth.GenerateAccessToken(userID, name, role, cfg.JWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
