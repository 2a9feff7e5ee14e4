package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kylejryan/claims-portal/internal/authz"
	"github.com/kylejryan/claims-portal/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a principal",
	Long: `Mint an HS256 bearer token signed with JWT_SECRET. The subject must be a
registered principal for the token to be accepted.`,
	Example: `  curl -H "Authorization: Bearer $(claimsctl token --sub u_alice)" localhost:3000/api/claims`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if strings.TrimSpace(sub) == "" {
			return fmt.Errorf("--sub is required")
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}

		env := config.MustLoad()
		tok, err := authz.IssueToken(env.JWTSecret, env.JWTIssuer, sub, ttl, time.Now())
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("sub", "", "principal id")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}
