package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/watchdeck/watchdeck/internal/auth"
	"github.com/watchdeck/watchdeck/internal/metrics"
	"github.com/watchdeck/watchdeck/internal/ratelimit"
	"github.com/watchdeck/watchdeck/internal/server"
)

const banner = `
 _ _ _ ____ ___ ____ _  _ ___  ____ ____ _  _
 | | | |__|  |  |    |__| |  \ |___ |    |_/
 |_|_| |  |  |  |___ |  | |__/ |___ |___ | \_
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Watchdeck API server",
		Long:  "Start the HTTP server that exposes the Watchdeck REST API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	if dev {
		viper.Set("log.level", "debug")
	}
	logger := newLogger()

	// 1. Open the database
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	logger.Info("database opened", "driver", viper.GetString("database.driver"))

	// 2. Auth service
	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		jwtSecret = "watchdeck-dev-secret-change-me"
		logger.Warn("auth.jwt_secret not set, using insecure development secret")
	}
	authSvc := auth.New(st, jwtSecret, logger)

	// 3. Rate limiter. In-process by default; a Redis address switches the
	// counters to a shared store so replicas enforce one quota.
	var counters ratelimit.CounterStore
	if addr := viper.GetString("ratelimit.redis_addr"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: viper.GetString("ratelimit.redis_password"),
			DB:       viper.GetInt("ratelimit.redis_db"),
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("ping redis at %s: %w", addr, err)
		}
		counters = ratelimit.NewRedisStore(client)
		logger.Info("rate limit counters in redis", "addr", addr)
	} else {
		counters = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(counters, limitClasses(), logger)

	// 4. Metrics
	m := metrics.New()

	// 5. First-run hint
	hasUser, err := st.HasAnyUser(context.Background())
	if err != nil {
		logger.Warn("failed to check for existing users", "error", err)
	}
	if !hasUser {
		logger.Warn("no accounts found - run: watchdeck admin create")
	}

	// 6. Build and start HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if origins := viper.GetStringSlice("server.cors.allowed_origins"); len(origins) > 0 {
		srvCfg.CORSOrigins = origins
	}
	if ttl := viper.GetDuration("auth.session_ttl"); ttl > 0 {
		srvCfg.SessionTTL = ttl
	}
	if global := viper.GetInt("ratelimit.global_per_minute"); global > 0 {
		srvCfg.GlobalRateLimit = global
	}

	srv := server.New(srvCfg, st, authSvc, limiter, m, logger)

	fmt.Printf("→ Watchdeck %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI:  http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Metrics:  http://%s:%d/metrics\n", host, port)
	fmt.Printf("→ Health:   http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

// limitClasses starts from the built-in per-class quotas and applies any
// overrides from the "ratelimit.classes" config section.
func limitClasses() map[ratelimit.Class]ratelimit.ClassConfig {
	classes := ratelimit.DefaultClasses()
	for class, cfg := range classes {
		key := "ratelimit.classes." + string(class)
		if n := viper.GetInt(key + ".max_requests"); n > 0 {
			cfg.MaxRequests = n
		}
		if w := viper.GetDuration(key + ".window"); w > 0 {
			cfg.Window = w
		}
		classes[class] = cfg
	}
	return classes
}
