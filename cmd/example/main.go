// Command example demonstrates building a Session for both the read-only
// (client_credentials) grant and the password grant with a TOTP two-factor
// callback, then issuing a handful of authenticated requests.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/pquerna/otp/totp"

	redditcore "github.com/jamesprial/redditcore"
	"github.com/jamesprial/redditcore/internal"
)

func main() {
	cfg, err := redditcore.LoadConfigFromEnv("REDDIT_")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		log.Fatal("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET environment variables are required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "example-bot/1.0 by YourUsername"
	}

	ctx := context.Background()

	readOnly, err := redditcore.NewTrustedReadOnlySession(cfg, nil)
	if err != nil {
		log.Fatalf("failed to build read-only session: %v", err)
	}
	me, err := readOnly.Request(ctx, http.MethodGet, "api/v1/me", redditcore.RequestParams{})
	if err != nil {
		log.Printf("read-only request failed: %v", err)
	} else {
		fmt.Printf("read-only /api/v1/me: %v\n", me)
	}

	if cfg.Username == "" || cfg.Password == "" {
		fmt.Println("set REDDIT_USERNAME/REDDIT_PASSWORD to also exercise the script grant")
		return
	}

	var twoFactorCallback func() string
	if totpSecret := os.Getenv("REDDIT_TOTP_SECRET"); totpSecret != "" {
		twoFactorCallback = func() string {
			code, err := totp.GenerateCode(totpSecret, time.Now())
			if err != nil {
				log.Printf("totp generation failed: %v", err)
				return ""
			}
			return code
		}
	}

	requestor := internal.NewRequestor(nil)
	authenticator, err := redditcore.NewTrustedAuthenticator(requestor, cfg.ClientID, cfg.ClientSecret, cfg.UserAgent)
	if err != nil {
		log.Fatalf("failed to build authenticator: %v", err)
	}
	authorizer := redditcore.NewScriptAuthorizer(authenticator, cfg.Username, cfg.Password, twoFactorCallback)
	scriptSession := redditcore.NewSession(authorizer, requestor, redditcore.WithUserAgent(cfg.UserAgent))

	me, err = scriptSession.Request(ctx, http.MethodGet, "api/v1/me", redditcore.RequestParams{})
	if err != nil {
		log.Printf("script-authenticated request failed: %v", err)
		return
	}
	fmt.Printf("authenticated as: %v\n", me)
}
