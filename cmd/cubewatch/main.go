package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinas/alice"

	"github.com/mujykun/ucube"
	"github.com/mujykun/ucube/internal/config"
	"github.com/mujykun/ucube/internal/observe"
	"github.com/mujykun/ucube/internal/server"
	"github.com/mujykun/ucube/internal/watch"
	"github.com/mujykun/ucube/models"
)

func configureAdminRoutes(client *ucube.AsyncClient, watches *watch.Store) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// The request body size is fairly limited to prevent accidental or
	// deliberate abuse. None of the admin routes accept a body.
	requestLimitBytes := int64(20 << 10) // 20 KB
	standardRouteMiddleware := alice.New(maxRequestSize(requestLimitBytes))

	mux.Handle("GET /stats", standardRouteMiddleware.Then(handleStats(client, watches)))

	// healthchecks are not included in telemetry
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux
}

func main() {
	// optional .env for local runs; the real environment always wins
	godotenv.Load()

	configureLogging()

	logBuildInfo()

	err := launchDaemon()
	if err != nil {
		log.Fatal().Err(err).Msg("daemon failed to start")
	}
}

func launchDaemon() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	banner(cfg)

	// everything started below registers its teardown here; hooks run after
	// the admin server stops accepting requests
	hooks := &server.ShutdownHooks{}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	hooks.AddContext("telemetry", shutdownTelemetry)

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	client, err := configureClient(cfg.Cube)
	if err != nil {
		return fmt.Errorf("client configuration failed: %w", err)
	}
	hooks.Add("client", client.Close)

	// every notification the refresh discovers is logged, whether or not the
	// watch profile admits it for announcement
	client.OnNotification(func(n *models.Notification) error {
		log.Debug().
			Str("club", n.ClubSlug).
			Str("notification", n.Slug).
			Msg("notification observed")
		return nil
	})

	log.Info().Msg("loading club hierarchy")
	if err := client.Start(ctx).Err(ctx); err != nil {
		return fmt.Errorf("initial load failed: %w", err)
	}
	log.Info().Msg("club hierarchy loaded")

	watches := watch.NewStore()
	if cfg.Watch.ProfilePath != "" {
		reloadCtx, stopReload := context.WithCancel(ctx)
		hooks.Add("watch-profile-reload", func() error {
			stopReload()
			return nil
		})

		go watch.PeriodicReload(reloadCtx, watches, cfg.Watch.ProfilePath,
			time.Duration(cfg.Watch.ProfileReloadSeconds)*time.Second)
	}

	poller, err := startPoller(ctx, cfg.Watch, client, watches)
	if err != nil {
		return fmt.Errorf("poller configuration failed: %w", err)
	}
	hooks.AddContext("poller", func(ctx context.Context) error {
		// Stop prevents new ticks; the returned context completes when any
		// in-flight poll has finished
		select {
		case <-poller.Stop().Done():
		case <-ctx.Done():
		}
		return nil
	})

	admin := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           configureAdminRoutes(client, watches),
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	err = serveHTTP(cfg.Server, admin)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second,
	)
	defer cancel()
	hooks.Execute(shutdownCtx)

	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureClient(cfg config.CubeConfig) (*ucube.AsyncClient, error) {
	clientConfig := ucube.Config{
		Username: cfg.Username,
		Password: cfg.Password,
		Token:    cfg.Token,
		BaseURL:  cfg.BaseURL,
		PageSize: cfg.PageSize,
	}

	opts := []ucube.Option{
		ucube.WithPosts(cfg.LoadPosts),
		ucube.WithComments(cfg.CommentsPerPost),
	}

	if len(cfg.BoardCategories) > 0 {
		categories := make([]models.BoardCategory, 0, len(cfg.BoardCategories))
		for _, c := range cfg.BoardCategories {
			categories = append(categories, models.BoardCategory(c))
		}
		opts = append(opts, ucube.WithBoardCategories(categories...))
	}

	if cfg.FollowAllClubs {
		opts = append(opts, ucube.WithFollowAllClubs())
	}

	return ucube.NewAsync(clientConfig, opts...)
}

func startPoller(ctx context.Context, cfg config.WatchConfig, client *ucube.AsyncClient, watches *watch.Store) (*cron.Cron, error) {
	cronLog := log.With().Str("component", "poller").Logger()

	// a poll still in flight when the next tick arrives skips the tick
	// rather than queueing a backlog of refreshes
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog)),
	))

	schedule := fmt.Sprintf("@every %ds", cfg.PollIntervalSeconds)
	_, err := scheduler.AddFunc(schedule, func() {
		poll(ctx, client, watches)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", schedule, err)
	}

	scheduler.Start()
	log.Info().Str("schedule", schedule).Msg("notification poller started")

	return scheduler, nil
}

// poll runs a single notification refresh, announcing anything new that the
// watch profile lets through.
func poll(ctx context.Context, client *ucube.AsyncClient, watches *watch.Store) {
	fresh, err := client.RefreshNotifications(ctx).Wait(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("notification poll failed")
		return
	}
	if len(fresh) == 0 {
		log.Debug().Msg("poll complete: nothing new")
		return
	}

	kept := watches.Current().Filter(fresh)
	log.Info().
		Int("fresh", len(fresh)).
		Int("announcing", len(kept)).
		Msg("poll complete")

	for _, n := range kept {
		announce(ctx, client, n)
	}
}

// announce logs a notification, resolving the referenced post when the
// notification carries one. Resolution goes through the client, so the post
// lands in the cache for later admin requests.
func announce(ctx context.Context, client *ucube.AsyncClient, n *models.Notification) {
	entry := log.Info().
		Str("club", n.ClubSlug).
		Str("notification", n.Slug).
		Str("title", n.Title).
		Time("created", n.CreatedAt)

	if n.PostSlug != "" {
		post, err := client.FetchPost(ctx, n.PostSlug).Wait(ctx)
		if err != nil {
			log.Warn().Err(err).
				Str("post", n.PostSlug).
				Msg("post resolution failed, announcing without content")
		} else {
			entry = entry.Str("post", post.Slug).Str("content", snippet(post.Content))
		}
	}

	entry.Msg("new notification")
}

// snippet flattens post content to a single log-friendly line.
func snippet(content string) string {
	flat := strings.Join(strings.Fields(content), " ")

	// rune-wise: post content is mostly Korean
	runes := []rune(flat)
	if len(runes) > 120 {
		return string(runes[:120]) + "..."
	}

	return flat
}

func banner(cfg config.Config) {
	credentials := "password"
	if cfg.Cube.Token != "" {
		credentials = "manual token"
	}

	heading := color.New(color.FgMagenta, color.Bold)
	heading.Fprintln(os.Stderr, "cubewatch")
	fmt.Fprintf(os.Stderr, "  credentials:   %s\n", credentials)
	fmt.Fprintf(os.Stderr, "  poll interval: %ds\n", cfg.Watch.PollIntervalSeconds)
	fmt.Fprintf(os.Stderr, "  admin port:    %d\n", cfg.Server.Port)
	if cfg.Watch.ProfilePath != "" {
		fmt.Fprintf(os.Stderr, "  watch profile: %s\n", cfg.Watch.ProfilePath)
	}
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
