package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/mentor-ticket-service/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <mentor-id>",
	Short: "Mint a mentor bearer token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			ttl = cfg.Auth.AccessTokenTTL()
		}
		tm := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl)
		token, expires, err := tm.GenerateToken(args[0], auth.Role(role))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
		return nil
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Bcrypt a chat service key read from stdin for AUTH_CHAT_SERVICE_KEY_HASH",
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read key: %w", err)
		}
		key := strings.TrimSpace(line)
		if key == "" {
			return fmt.Errorf("empty key")
		}
		hash, err := auth.HashKey(key, cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("role", string(auth.RoleMentor), "mentor or lead")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default AUTH_ACCESS_TOKEN_TTL_MINUTES)")
}
