package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMintSessionCommand() *cobra.Command {
	var identity auth.SessionIdentity
	cmd := &cobra.Command{
		Use:   "mint-session",
		Short: "Print a signed session token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningKey),
				Issuer:        appConfig.SessionIssuer,
				TTL:           appConfig.SessionTTL,
			})
			token, expiresAt, err := issuer.Issue(identity)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", appConfig.SessionCookieName, token)
			fmt.Fprintf(cmd.OutOrStdout(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&identity.UserID, "user-id", "", "Provider user id stored as the session subject")
	cmd.Flags().StringVar(&identity.Username, "username", "", "Display name")
	cmd.Flags().StringVar(&identity.AvatarURL, "avatar-url", "", "Avatar URL")
	cmd.Flags().StringVar(&identity.ProviderAccessToken, "access-token", "", "Provider access token used for guild lookups")
	if err := cmd.MarkFlagRequired("user-id"); err != nil {
		panic(err)
	}
	return cmd
}
