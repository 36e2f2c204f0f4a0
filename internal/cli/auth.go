package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/graceworks/missionsync/internal/auth"
	"github.com/graceworks/missionsync/pkg/output"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect and bootstrap stored API tokens",
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored token state for both systems",
	Long: `Status reads the persisted token files and reports validity and time
to expiry. Token values themselves are never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := output.NewTable("SYSTEM", "STATE", "EXPIRES IN", "REFRESH TOKEN")
		t.AddRow(tokenRow("servepoint", cfg.ServePointTokenFile, false)...)
		t.AddRow(tokenRow("beacon", cfg.BeaconTokenFile, true)...)
		t.Render()
		return nil
	},
}

var authExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange a Beacon authorization code for tokens",
	Long: `Exchange completes Beacon's one-time authorization flow: paste the code
from the browser redirect and the resulting access and refresh tokens are
persisted for every later command. Needed once per deployment, and again
whenever the refresh token is revoked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("code")
		redirectURI, _ := cmd.Flags().GetString("redirect-uri")
		if code == "" {
			return fmt.Errorf("--code is required")
		}
		if cfg.BeaconClientID == "" || cfg.BeaconClientSecret == "" {
			return fmt.Errorf("missing required configuration: BEACON_CLIENT_ID, BEACON_CLIENT_SECRET")
		}

		src := auth.NewRefreshTokenSource("beacon",
			cfg.BeaconTokenURL, cfg.BeaconClientID, cfg.BeaconClientSecret,
			auth.NewFileStore(cfg.BeaconTokenFile), logger)
		tok, err := src.ExchangeAuthorizationCode(cmd.Context(), code, redirectURI)
		if err != nil {
			return err
		}

		output.Success("Beacon tokens stored in %s", cfg.BeaconTokenFile)
		output.Info("Access token expires in %s", (time.Duration(tok.ExpiresIn) * time.Second).String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authExchangeCmd)
	authExchangeCmd.Flags().String("code", "", "authorization code from the Beacon consent redirect")
	authExchangeCmd.Flags().String("redirect-uri", "", "redirect URI registered with the Beacon application")
}

// tokenRow summarizes one token file without exposing any secret material.
func tokenRow(system, path string, refreshFlow bool) []string {
	refresh := "n/a"
	tok, err := auth.NewFileStore(path).Load()
	switch {
	case err != nil:
		return []string{system, "unreadable: " + err.Error(), "-", refresh}
	case tok == nil:
		return []string{system, "absent", "-", refresh}
	}

	if refreshFlow {
		if tok.RefreshToken != "" {
			refresh = "present"
		} else {
			refresh = "missing"
		}
	}
	state := "refresh due"
	expires := "-"
	if tok.Valid(time.Now()) {
		state = "valid"
		expires = tok.RemainingAt(time.Now()).Round(time.Second).String()
	}
	return []string{system, state, expires, refresh}
}
