package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"rssreader/internal/inoreader"
	"rssreader/internal/models"
	"rssreader/internal/ratelimit"
	"rssreader/internal/security"
	"rssreader/internal/storage"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to the Inoreader account",
	Long: `Authorize rssreader with Inoreader using the OAuth2 code flow.

Examples:
  rssreader auth url           # Print the consent page URL
  rssreader auth exchange CODE # Exchange the returned code and store the token
  rssreader auth token         # Issue an API token for the account owner`,
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the Inoreader consent page URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Inoreader.ClientID == "" {
			return fmt.Errorf("INOREADER_CLIENT_ID is not set")
		}
		url := inoreader.OAuthConfig(cfg.Inoreader).AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline)
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

var authExchangeCmd = &cobra.Command{
	Use:   "exchange CODE",
	Short: "Exchange an authorization code and store the token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthExchange,
}

var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the REST API",
	Long: `Sign a JWT for AUTH_OWNER_ID with AUTH_JWT_SECRET, for clients of the REST API
when token auth is enabled.`,
	RunE: runAuthToken,
}

func init() {
	authTokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")
	authCmd.AddCommand(authURLCmd, authExchangeCmd, authTokenCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthExchange(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	oauthConfig := inoreader.OAuthConfig(cfg.Inoreader)
	token, err := oauthConfig.Exchange(ctx, args[0])
	if err != nil {
		failure(cmd.ErrOrStderr(), "Code exchange failed: %v", err)
		return err
	}

	store, err := storage.NewStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Check the token against the API before it replaces a working one.
	limiter := ratelimit.New(store, ratelimit.Config{
		Zone1DailyLimit:     cfg.RateLimit.Zone1DailyLimit,
		Zone2DailyLimit:     cfg.RateLimit.Zone2DailyLimit,
		SafetyBufferPercent: cfg.RateLimit.SafetyBufferPercent,
	}, logger)
	httpClient := oauthConfig.Client(ctx, token)
	httpClient.Timeout = cfg.Inoreader.RequestTimeout
	info, err := inoreader.NewClient(cfg.Inoreader, httpClient, limiter, logger).UserInfo(ctx)
	if err != nil {
		failure(cmd.ErrOrStderr(), "Token was issued but Inoreader rejected it: %v", err)
		return err
	}

	err = store.SaveToken(ctx, models.OAuthToken{
		Provider:     inoreader.TokenProvider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	})
	if err != nil {
		return err
	}

	success(cmd.OutOrStdout(), "Signed in as %s, token stored (expires %s)",
		info.UserName, token.Expiry.Local().Format("2006-01-02 15:04"))
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	ttl, _ := cmd.Flags().GetDuration("ttl")

	token, err := security.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.OwnerID).Issue(cfg.Auth.OwnerID, ttl)
	if err != nil {
		return fmt.Errorf("cannot issue token: %w (set AUTH_JWT_SECRET)", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
