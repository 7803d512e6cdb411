package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Alturino/foodorder/internal/auth"
	"github.com/Alturino/foodorder/internal/config"
	"github.com/Alturino/foodorder/internal/constants"
)

// newTokenCommand mints bearer tokens for local development with the secret of the given
// service's config.
func newTokenCommand() *cobra.Command {
	var (
		service string
		userID  string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("failed parsing user=%s with error=%w", userID, err)
				}
				id = parsed
			}
			r := auth.Role(strings.ToUpper(role))
			if !r.IsValid() {
				return fmt.Errorf("unknown role=%s", role)
			}

			cfg := config.Get(cmd.Context(), service)
			tokens := auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.Issuer, constants.AudienceStorefront, cfg.Auth.TokenTTL)
			token, err := tokens.Issue(cmd.Context(), id, r)
			if err != nil {
				return fmt.Errorf("failed issuing token with error=%w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", constants.AppOrderService, "service whose config holds the signing secret")
	cmd.Flags().StringVar(&userID, "user", "", "user id, random when empty")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleCustomer), "CUSTOMER, STAFF or ADMIN")
	return cmd
}
