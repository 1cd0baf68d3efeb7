package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// Browser fetches fully rendered HTML through a headless Chrome instance.
// Used for listing pages that only populate via JavaScript.
type Browser struct {
	execPath  string
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

type BrowserConfig struct {
	ExecPath  string
	UserAgent string
	Timeout   time.Duration
	Delay     time.Duration
}

func NewBrowser(cfg BrowserConfig, logger *slog.Logger) *Browser {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Delay == 0 {
		cfg.Delay = 2 * time.Second
	}
	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = findChromeBinary()
	}
	return &Browser{
		execPath:  execPath,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		limiter:   rate.NewLimiter(rate.Every(cfg.Delay), 1),
		logger:    logger.With("fetcher", "browser"),
	}
}

// FetchHTML navigates to the URL and returns the rendered document markup.
func (b *Browser) FetchHTML(ctx context.Context, url string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, b.timeout)
	defer cancelTimeout()

	b.logger.Debug("fetching rendered page", "url", url)

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	return html, nil
}

func findChromeBinary() string {
	for _, name := range []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
	} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
