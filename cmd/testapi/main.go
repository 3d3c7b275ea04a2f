// Command testapi is a minimal smoke test: load credentials from the
// environment (or a .env file) and fetch /api/v1/me through a Session.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	redditcore "github.com/jamesprial/redditcore"
)

func main() {
	_ = redditcore.LoadDotEnv(".env")

	cfg, err := redditcore.LoadConfigFromEnv("REDDIT_")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		fmt.Fprintln(os.Stderr, "REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET required")
		os.Exit(1)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "testapi-smoke/1.0"
	}

	session, err := redditcore.NewTrustedReadOnlySession(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build session: %v\n", err)
		os.Exit(1)
	}

	result, err := session.Request(context.Background(), http.MethodGet, "api/v1/me", redditcore.RequestParams{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%v\n", result)
}
