package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// BrowserCalendar creates events by driving a self-hosted calendar web UI
// with a headless browser. The target form is expected to expose title,
// date, start, end, and attendees inputs plus a submit button, as the
// bundled scheduling frontend does. Requires Chrome/Chromium on the host.
type BrowserCalendar struct {
	formURL string
	timeout time.Duration
}

func NewBrowserCalendar(formURL string) *BrowserCalendar {
	return &BrowserCalendar{formURL: formURL, timeout: 60 * time.Second}
}

// CreateEvent fills and submits the event form, then waits for the UI to
// acknowledge the created event.
func (c *BrowserCalendar) CreateEvent(ctx context.Context, p *types.MeetingPayload) error {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, c.timeout)
	defer cancel()

	attendees := ""
	for i, a := range p.Attendees {
		if i > 0 {
			attendees += ", "
		}
		attendees += a
	}

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(c.formURL),
		chromedp.WaitReady("body"),
		chromedp.WaitVisible(`#event-form`, chromedp.ByID),
		chromedp.SetValue(`#event-title`, p.Title, chromedp.ByID),
		chromedp.SetValue(`#event-date`, p.Date, chromedp.ByID),
		chromedp.SetValue(`#event-start`, p.StartTime, chromedp.ByID),
		chromedp.SetValue(`#event-end`, p.EndTime, chromedp.ByID),
		chromedp.SetValue(`#event-attendees`, attendees, chromedp.ByID),
		chromedp.Click(`#event-submit`, chromedp.NodeVisible),
		chromedp.WaitVisible(`#event-created`, chromedp.ByID),
	)
	if err != nil {
		return fmt.Errorf("calendar form submission failed: %w", err)
	}
	return nil
}
