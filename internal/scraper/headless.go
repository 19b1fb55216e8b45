package scraper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"pricetracker/internal/model"
	"pricetracker/internal/procguard"
)

// HeadlessAdapter renders JS-heavy retailer pages by dumping the DOM from a
// headless chromium. Every spawned browser is registered with the guard the
// moment it starts and released on every exit path; the guard's sweep is the
// backstop if this process dies mid-fetch.
type HeadlessAdapter struct {
	guard        *procguard.Guard
	chromiumPath string
	timeout      time.Duration
}

func NewHeadlessAdapter(guard *procguard.Guard, chromiumPath string, timeout time.Duration) *HeadlessAdapter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HeadlessAdapter{guard: guard, chromiumPath: chromiumPath, timeout: timeout}
}

func (a *HeadlessAdapter) Name() string { return "headless" }

func (a *HeadlessAdapter) Fetch(ctx context.Context, target model.RetailerTarget) (model.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.chromiumPath,
		"--headless=new",
		"--disable-gpu",
		"--no-sandbox",
		"--virtual-time-budget=10000",
		"--dump-dom",
		target.URL,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return model.FetchResult{}, model.NewFetchError(model.NetworkError,
			fmt.Errorf("start %s: %w", a.chromiumPath, err))
	}

	handle := a.guard.Acquire(int32(cmd.Process.Pid), "chromium "+target.Key())
	defer a.guard.Release(handle)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return model.FetchResult{}, model.NewFetchError(model.NetworkError,
				fmt.Errorf("render %s: %w", target.URL, ctx.Err()))
		}
		return model.FetchResult{}, model.NewFetchError(model.NetworkError,
			fmt.Errorf("render %s: %w (%s)", target.URL, err, bytes.TrimSpace(stderr.Bytes())))
	}

	return parseProductPage(stdout.String(), target)
}
