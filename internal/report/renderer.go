package report

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"zoneatlas/internal/types"
)

// US letter dimensions and report margins, in inches.
const (
	paperWidthIn  = 8.5
	paperHeightIn = 11.0
	marginIn      = 0.5
)

// Renderer rasterizes report HTML to a PDF document.
type Renderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// ChromeRenderer renders PDFs through a headless Chrome instance via
// the DevTools protocol. Each render launches a fresh browser process;
// report volume is low enough that launch cost beats managing a warm
// browser pool in a short-lived worker.
type ChromeRenderer struct {
	execPath string
	timeout  time.Duration
	logger   types.Logger
}

// NewChromeRenderer creates a ChromeRenderer. execPath may be empty to
// use chromedp's default browser discovery.
func NewChromeRenderer(execPath string, timeout time.Duration, logger types.Logger) *ChromeRenderer {
	if logger == nil {
		logger = types.NopLogger{}
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &ChromeRenderer{
		execPath: execPath,
		timeout:  timeout,
		logger:   logger,
	}
}

// RenderPDF loads the document into a headless browser page and prints
// it to a letter-format PDF with fixed margins.
func (r *ChromeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	start := time.Now()
	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPaperWidth(paperWidthIn).
				WithPaperHeight(paperHeightIn).
				WithMarginTop(marginIn).
				WithMarginBottom(marginIn).
				WithMarginLeft(marginIn).
				WithMarginRight(marginIn).
				WithPrintBackground(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamRenderer,
			"headless browser render failed", err)
	}

	r.logger.Debug("rendered report PDF",
		"bytes", len(pdf),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pdf, nil
}
