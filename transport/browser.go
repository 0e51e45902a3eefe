package transport

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/playwright-community/playwright-go"
)

// NewBrowserEngine picks an engine by name. Unknown names fall back to
// chromedp. dataDir is the chromedp profile directory; empty means a
// throwaway profile.
func NewBrowserEngine(name, dataDir string) BrowserEngine {
	if name == "playwright" {
		return NewPlaywrightEngine()
	}
	return NewChromeEngine(dataDir)
}

// ChromeEngine drives a local Chrome through chromedp, one browser process
// per render.
type ChromeEngine struct {
	dataDir string
	// Chrome locks a profile directory, so renders sharing one take turns.
	mu sync.Mutex
}

func NewChromeEngine(dataDir string) *ChromeEngine {
	return &ChromeEngine{dataDir: dataDir}
}

func (e *ChromeEngine) Render(ctx context.Context, url string, opts Options) (string, int, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if e.dataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(e.dataDir))
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, timeoutOf(opts))
	defer cancel()

	var html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if timeoutCtx.Err() != nil {
			return "", 0, fmt.Errorf("chromedp: %w", context.DeadlineExceeded)
		}
		return "", 0, fmt.Errorf("chromedp: %w", err)
	}

	// chromedp doesn't expose the document status without network listeners
	return html, 200, nil
}

func (e *ChromeEngine) Close() error {
	return nil
}

// PlaywrightEngine launches Chromium through playwright-go. The driver
// starts on first use and is shared across renders.
type PlaywrightEngine struct {
	mu sync.Mutex
	pw *playwright.Playwright
}

func NewPlaywrightEngine() *PlaywrightEngine {
	return &PlaywrightEngine{}
}

func (e *PlaywrightEngine) ensureDriver() (*playwright.Playwright, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw != nil {
		return e.pw, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	e.pw = pw
	return pw, nil
}

func (e *PlaywrightEngine) Render(ctx context.Context, url string, opts Options) (string, int, error) {
	pw, err := e.ensureDriver()
	if err != nil {
		return "", 0, err
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer browser.Close()

	contextOpts := playwright.BrowserNewContextOptions{}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		return "", 0, fmt.Errorf("new context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", 0, fmt.Errorf("new page: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeoutOf(opts).Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return "", 0, fmt.Errorf("goto: %w", err)
	}

	status := 200
	if resp != nil {
		status = resp.Status()
	}

	html, err := page.Content()
	if err != nil {
		return "", status, fmt.Errorf("content: %w", err)
	}
	return html, status, nil
}

func (e *PlaywrightEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw == nil {
		return nil
	}
	err := e.pw.Stop()
	e.pw = nil
	return err
}

// UserDataDir makes sure a browser profile directory exists.
func UserDataDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create browser data dir: %w", err)
	}
	return path, nil
}
