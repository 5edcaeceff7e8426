// Command cubetoken logs in with a username/password pair and prints the
// resulting bearer token to stdout. Useful for obtaining a manual token to
// run other tools with UCUBE_AUTH, or for poking the API by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mujykun/ucube/internal/auth"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Username string `env:"UCUBE_USERNAME, required"`
	Password string `env:"UCUBE_PASSWORD, required"`
	BaseURL  string `env:"UCUBE_BASE_URL"`
}

func main() {
	godotenv.Load()

	ctx := context.Background()

	cfg := Config{}
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	var opts []auth.Option
	if cfg.BaseURL != "" {
		opts = append(opts, auth.WithBaseURL(cfg.BaseURL))
	}

	tokens := auth.NewPasswordStore(cfg.Username, cfg.Password, opts...)

	token, err := tokens.Token(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error obtaining token: %v\n", err)
		os.Exit(1)
	}

	// the expiry goes to stderr so stdout stays pipeable
	if expiry := tokens.Expiry(); !expiry.IsZero() {
		fmt.Fprintf(os.Stderr, "token expires %s\n", expiry.UTC().Format(time.RFC3339))
	}

	fmt.Printf("%s", token)
}
