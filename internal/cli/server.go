package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/kilupskalvis/blockcast/internal/auth"
	"github.com/kilupskalvis/blockcast/internal/remote"
	"github.com/kilupskalvis/blockcast/internal/remote/blobstore"
	"github.com/kilupskalvis/blockcast/internal/remote/metastore"
	"github.com/kilupskalvis/blockcast/internal/remote/server"
	"github.com/kilupskalvis/blockcast/internal/store"
	"github.com/spf13/cobra"
)

var (
	serverListen        string
	serverDataDir       string
	serverLogLevel      string
	serverLogFormat     string
	serverTLSCert       string
	serverTLSKey        string
	serverWebhookURLs   string
	serverWebhookSecret string
	serverSessionTTL    time.Duration
	serverSweepInterval time.Duration

	serverAdminURL   string
	serverAdminToken string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run and administer the library server",
	Long:  "Commands for running the blockcast library server.",
}

var serverStartCmd = NewServerCommand("start")

var serverGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete videos no recording references",
	Long: `Ask the server to delete stored videos that no published recording
references. Requires the admin token.

Examples:
  blockcast server gc --url https://casts.example.com`,
	Args: cobra.NoArgs,
	Run:  runServerGC,
}

var serverSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge expired sessions",
	Args:  cobra.NoArgs,
	Run:   runServerSweep,
}

func init() {
	serverCmd.AddCommand(serverStartCmd, serverGCCmd, serverSweepCmd)

	// Both admin commands bind the same package-level vars; only one command
	// path executes at runtime.
	for _, cmd := range []*cobra.Command{serverGCCmd, serverSweepCmd} {
		cmd.Flags().StringVar(&serverAdminURL, "url",
			os.Getenv("BLOCKCAST_SERVER_URL"),
			"Server base URL (env: BLOCKCAST_SERVER_URL, default: workspace server)")
		cmd.Flags().StringVar(&serverAdminToken, "admin-token",
			os.Getenv("BLOCKCAST_ADMIN_TOKEN"),
			"Admin token (env: BLOCKCAST_ADMIN_TOKEN)")
	}
}

// NewServerCommand returns a command that runs the library server. It backs
// both 'blockcast server start' and the standalone blockcast-server binary.
func NewServerCommand(use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Start the blockcast library server",
		Long: `Start the blockcast library server.

Recording metadata is kept in bbolt, videos on the local filesystem and
accounts in SQLite, all under --data-dir. Clients authenticate with session
tokens issued by /api/login.

The admin token enables the /admin/ endpoints for garbage collection and
session sweeps.

Examples:
  blockcast server start
  blockcast server start --listen 0.0.0.0:8720 --data-dir /var/lib/blockcast
  blockcast server start --tls-cert server.crt --tls-key server.key`,
		Args: cobra.NoArgs,
		Run:  runServerStart,
	}

	f := cmd.Flags()
	f.StringVar(&serverListen, "listen", envOrDefault("BLOCKCAST_LISTEN", "127.0.0.1:8720"), "Listen address (host:port)")
	f.StringVar(&serverDataDir, "data-dir", envOrDefault("BLOCKCAST_DATA_DIR", defaultDataDir()), "Directory for library data")
	f.StringVar(&serverLogLevel, "log-level", envOrDefault("BLOCKCAST_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	f.StringVar(&serverLogFormat, "log-format", envOrDefault("BLOCKCAST_LOG_FORMAT", "json"), "Log format (json|text)")
	f.StringVar(&serverTLSCert, "tls-cert", os.Getenv("BLOCKCAST_TLS_CERT"), "TLS certificate file")
	f.StringVar(&serverTLSKey, "tls-key", os.Getenv("BLOCKCAST_TLS_KEY"), "TLS key file")
	f.StringVar(&serverWebhookURLs, "webhook-urls", os.Getenv("BLOCKCAST_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on publish")
	f.StringVar(&serverWebhookSecret, "webhook-secret", os.Getenv("BLOCKCAST_WEBHOOK_SECRET"), "HMAC secret for signing webhook payloads")
	f.DurationVar(&serverSessionTTL, "session-ttl", envDuration("BLOCKCAST_SESSION_TTL", auth.DefaultSessionTTL), "Session lifetime")
	f.DurationVar(&serverSweepInterval, "sweep-interval", 5*time.Minute, "How often expired sessions are purged (0 disables)")
	return cmd
}

// backend is the storage a running server owns.
type backend struct {
	meta   *metastore.BboltStore
	videos blobstore.VideoStore
	users  *store.Store
}

func (b *backend) Close() {
	if b.users != nil {
		b.users.Close()
	}
	if b.meta != nil {
		b.meta.Close()
	}
}

// openBackend opens (creating on first run) everything under dir. On error,
// whatever was already opened is closed.
func openBackend(dir string, maxVideo int64) (_ *backend, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	b := &backend{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if b.meta, err = metastore.NewBboltStore(filepath.Join(dir, "meta.db")); err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	if b.videos, err = blobstore.NewFSStore(filepath.Join(dir, "videos"), blobstore.WithMaxSize(maxVideo)); err != nil {
		return nil, fmt.Errorf("open video store: %w", err)
	}
	if b.users, err = store.New(filepath.Join(dir, "users.db")); err != nil {
		return nil, fmt.Errorf("open user store: %w", err)
	}
	if err = b.users.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize user store: %w", err)
	}
	return b, nil
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func runServerStart(_ *cobra.Command, _ []string) {
	logger := newLogger(serverLogLevel, serverLogFormat)

	cfg := server.DefaultServerConfig()
	cfg.AdminToken = os.Getenv("BLOCKCAST_ADMIN_TOKEN")

	b, err := openBackend(serverDataDir, cfg.MaxVideoSize)
	if err != nil {
		logger.Error("server startup failed", "error", err, "data_dir", serverDataDir)
		os.Exit(1)
	}
	defer b.Close()
	cfg.ReadyCheck = b.users.Ping

	users := auth.NewManager(b.users, auth.Config{SessionTTL: serverSessionTTL, Logger: logger})

	if urls := splitList(serverWebhookURLs); len(urls) > 0 {
		cfg.Webhooks = server.NewWebhookNotifier(&server.WebhookConfig{URLs: urls, Secret: serverWebhookSecret}, logger)
		logger.Info("publish webhooks enabled", "targets", len(urls))
	}

	h, closeHandler := server.Handler(b.meta, b.videos, users, cfg, logger)
	defer closeHandler()

	srv := &http.Server{
		Addr:              serverListen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serverSweepInterval > 0 {
		go sweepSessions(ctx, users, serverSweepInterval, logger)
	}

	if err := serve(ctx, srv, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
// Requests keep their own context so a signal does not abort uploads mid-way.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("blockcast server listening", "listen", srv.Addr, "data_dir", serverDataDir, "session_ttl", serverSessionTTL)
		if serverTLSCert != "" && serverTLSKey != "" {
			errc <- srv.ListenAndServeTLS(serverTLSCert, serverTLSKey)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown requested, draining connections")
	drain, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(drain); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// sessionSweeper is the part of auth.Manager the sweep loop uses.
type sessionSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// sweepSessions purges expired sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, users sessionSweeper, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := users.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions purged", "count", n)
			}
		}
	}
}

func adminClient() *remote.AdminClient {
	url := serverAdminURL
	if url == "" {
		lib := optionalConfigURL()
		if lib == "" {
			exitError("no server URL, pass --url or run inside a workspace")
		}
		url = lib
	}
	if serverAdminToken == "" {
		exitError("admin token required (--admin-token or BLOCKCAST_ADMIN_TOKEN)")
	}
	return remote.NewAdminClient(url, serverAdminToken)
}

func runServerGC(_ *cobra.Command, _ []string) {
	result, err := adminClient().GarbageCollect(context.Background())
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Deleted %d of %d videos\n", result.VideosDeleted, result.VideosScanned)
	fmt.Printf("%d videos referenced by recordings\n", result.ReferencedVideos)
}

func runServerSweep(_ *cobra.Command, _ []string) {
	result, err := adminClient().SweepSessions(context.Background())
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Purged %d expired sessions\n", result.Deleted)
}

// newLogger builds the server's slog logger. Unknown levels fall back to
// info; any format other than "text" yields JSON.
func newLogger(levelName, format string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// defaultDataDir returns the default server data directory (~/.blockcast-server).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/blockcast-server"
	}
	return filepath.Join(home, ".blockcast-server")
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envDuration parses a duration from the environment, or returns defaultVal
// if unset or malformed.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
