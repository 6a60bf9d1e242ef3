// internal/browser/session/session.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/internal/automation/page"
	"github.com/xkilldash9x/synthcheck-cli/internal/config"
)

// The session is the sole implementation of the automation page contract.
var _ page.Page = (*Session)(nil)

// Session owns one Chrome tab driven over CDP. It exposes the page
// primitives the automation packages build on: script evaluation, raw input
// dispatch, and navigation. The live DOM itself stays inside the browser;
// the session holds no page state.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// New launches (or prepares) a browser and opens a fresh tab context.
// The returned session must be closed by the caller.
func New(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", sessionID))

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{}
	if cfg.Debug {
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(log.Sugar().Debugf),
			chromedp.WithErrorf(log.Sugar().Errorf),
		)
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Session{
		id:          sessionID,
		ctx:         tabCtx,
		cancel:      tabCancel,
		logger:      log,
		cfg:         cfg,
		allocCancel: allocCancel,
	}

	// Force the browser process to start now so failures surface here
	// rather than on the first automation step.
	startCtx, startCancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		s.Close(context.Background())
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// allocatorOptions translates the browser configuration into chromedp
// allocator options. Defined explicitly rather than relying solely on
// chromedp.DefaultExecAllocatorOptions so behavior is pinned.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-infobars", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// RunActions executes chromedp actions against the session's tab, honoring
// both the session lifecycle context and the operational context.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the target URL. chromedp's Navigate waits for the page's
// load event; the configured navigation timeout is the fallback bound for
// hosts that never fire it.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("Navigating.", zap.String("url", targetURL))
	if err := s.RunActions(navCtx, chromedp.Navigate(targetURL)); err != nil {
		// Hosts that hydrate long after the load signal can exhaust the
		// navigation timeout while still ending up usable. Readiness
		// detection downstream decides whether the page actually came up.
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			s.logger.Warn("Navigation did not settle before the fallback timeout; continuing.",
				zap.Duration("timeout", timeout))
			return nil
		}
		return fmt.Errorf("navigation to %q failed: %w", targetURL, err)
	}
	return nil
}

// Close tears down the tab and the browser allocator.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")
		// Graceful browser shutdown first; Cancel needs the tab context
		// values, so use a detached context if ctx is already done.
		if err := chromedp.Cancel(Detach(s.ctx)); err != nil {
			s.logger.Debug("Graceful browser cancel failed.", zap.Error(err))
		}
		s.cancel()
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
	return nil
}
