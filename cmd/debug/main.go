// Command debug sets Config.Logger and issues a couple of requests to show
// the full token-refresh/request cycle at debug level.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	redditcore "github.com/jamesprial/redditcore"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg, err := redditcore.LoadConfigFromEnv("REDDIT_")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		log.Fatal("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET environment variables are required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "debug-bot/1.0"
	}
	cfg.Logger = logger

	session, err := redditcore.NewTrustedReadOnlySession(cfg, nil)
	if err != nil {
		log.Fatalf("failed to build session: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		result, err := session.Request(ctx, http.MethodGet, "api/v1/me", redditcore.RequestParams{})
		if err != nil {
			logger.Error("request failed", "attempt", i+1, "error", err)
			continue
		}
		fmt.Printf("attempt %d: %v\n", i+1, result)
	}
}
