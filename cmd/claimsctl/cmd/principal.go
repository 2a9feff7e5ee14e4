package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kylejryan/claims-portal/internal/bootstrap"
	"github.com/kylejryan/claims-portal/internal/config"
	"github.com/kylejryan/claims-portal/internal/models"
	"github.com/kylejryan/claims-portal/internal/validate"
)

var principalCmd = &cobra.Command{
	Use:   "principal",
	Short: "Manage principals",
}

var principalAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register or replace a principal",
	Example: `  claimsctl principal add --id u_alice --email alice@example.com --role patient
  claimsctl principal add --id u_ins --email adjuster@insure.co --role insurer`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		email, _ := cmd.Flags().GetString("email")
		role, _ := cmd.Flags().GetString("role")

		p, err := newPrincipal(id, email, role)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, closeStore, err := bootstrap.OpenStore(ctx, config.MustLoad())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeStore()

		if err := store.PutPrincipal(ctx, p); err != nil {
			return fmt.Errorf("save principal: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s, %s)\n", p.ID, p.Role, p.Email)
		return nil
	},
}

var principalShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a registered principal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, closeStore, err := bootstrap.OpenStore(ctx, config.MustLoad())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeStore()

		p, err := store.GetPrincipal(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load principal %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.ID, p.Role, p.Email)
		return nil
	},
}

// newPrincipal validates the flag values for principal add.
func newPrincipal(id, email, role string) (models.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Principal{}, fmt.Errorf("--id is required")
	}
	if err := validate.Email(email); err != nil {
		return models.Principal{}, fmt.Errorf("--email: %w", err)
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return models.Principal{}, fmt.Errorf("--role: %w", err)
	}
	return models.Principal{ID: id, Email: models.NormalizeEmail(email), Role: r}, nil
}

func init() {
	principalCmd.AddCommand(principalAddCmd)
	principalCmd.AddCommand(principalShowCmd)

	principalAddCmd.Flags().String("id", "", "principal id (the token subject)")
	principalAddCmd.Flags().String("email", "", "principal email")
	principalAddCmd.Flags().String("role", "", "patient or insurer")
}
