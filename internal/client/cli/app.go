package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/memokeeper/internal/client/client"
	"github.com/dmitrijs2005/memokeeper/internal/client/config"
	"github.com/dmitrijs2005/memokeeper/internal/client/metrics"
	"github.com/dmitrijs2005/memokeeper/internal/client/models"
	"github.com/dmitrijs2005/memokeeper/internal/client/services"
	"github.com/dmitrijs2005/memokeeper/internal/client/upload"
	"github.com/dmitrijs2005/memokeeper/internal/client/vault"
	"github.com/dmitrijs2005/memokeeper/internal/logging"
	"github.com/fatih/color"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// sessionAPI is the part of services.Session the commands use.
type sessionAPI interface {
	Login(ctx context.Context, username string, password []byte) (bool, error)
	Logout(ctx context.Context) error
	Close(ctx context.Context) error
	Record(ctx context.Context, path, contactRef string) (string, error)
	List(ctx context.Context) ([]models.View, error)
	Show(ctx context.Context, id string) (models.View, error)
	Retry(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Owner() (string, bool)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	authService services.AuthService
	session     sessionAPI
	reader      *bufio.Reader
	out         io.Writer
	closers     []io.Closer

	mu       sync.Mutex
	userName string
	Mode     Mode
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	v, err := openVault(c, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		config:  c,
		logger:  logger.With("module", "cli"),
		reader:  bufio.NewReader(os.Stdin),
		out:     color.Output,
		closers: []io.Closer{db},
	}

	s := services.NewSession(services.Deps{
		Client:   apiClient,
		DB:       db,
		Vault:    v,
		Logger:   logger,
		Notifier: a,
		Uploads: upload.Config{
			MaxConcurrent:   c.MaxConcurrentUploads,
			MaxAttempts:     c.MaxUploadAttempts,
			InitialInterval: c.RetryInitialInterval,
			MaxInterval:     c.RetryMaxInterval,
		},
		RetryInterval: c.RetryInitialInterval,
		ArtifactsDir:  c.ArtifactsDir,
	})
	a.session = s
	a.authService = s.Auth()

	return a, nil
}

func openVault(c *config.Config, db *sql.DB) (vault.Vault, error) {
	switch c.VaultBackend {
	case "sqlite":
		return vault.NewSQLiteVault(db, c.ServiceNamespace), nil
	case "keyring", "":
		v, err := vault.OpenKeyring(vault.KeyringConfig{Namespace: c.ServiceNamespace})
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault backend %q", c.VaultBackend)
	}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()

	if changed {
		a.printf("%s\n", color.YellowString("Switched to %s mode", mode))
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.session.Close(ctx); err != nil {
			a.logger.Error(ctx, "close failed", "error", err)
		}
		for _, c := range a.closers {
			_ = c.Close()
		}
	}()

	go func() {
		if err := metrics.Serve(ctx, a.config.MetricsAddr); err != nil {
			a.logger.Error(ctx, "metrics server stopped", "error", err)
		}
	}()

	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	if a.session == nil {
		return false
	}
	_, ok := a.session.Owner()
	return ok
}

// UploadFailed prints a failed upload notification.
func (a *App) UploadFailed(ctx context.Context, tempID string, err error) {
	a.printf("\n%s upload of %s failed: %v (use 'retry %s')\n", color.RedString("✗"), tempID, err, tempID)
}

func (a *App) printf(format string, args ...any) {
	if a.out == nil {
		return
	}
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.authService.Ping(pctx)
			cancel()

			if err != nil {
				if a.mode() == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else if a.mode() != ModeOnline {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
