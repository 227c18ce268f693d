package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

// maxWeatherBody caps the weather response read into memory.
const maxWeatherBody = 64 * 1024

func (h *Handlers) opener(rawURL string) []string {
	switch h.goos {
	case "darwin":
		return []string{"open", rawURL}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler", rawURL}
	default:
		return []string{"xdg-open", rawURL}
	}
}

func (h *Handlers) browse(rawURL string) error {
	argv := h.opener(rawURL)
	return h.runner.Start(argv[0], argv[1:]...)
}

func (h *Handlers) searchWeb(_ context.Context, in intent.Intent) (router.Outcome, error) {
	query := strings.TrimSpace(in.Target)
	if query == "" {
		return router.Fail(router.KindValidation, "No search query specified"), nil
	}
	searchURL := h.searchURL + url.QueryEscape(query)
	data := map[string]any{"query": query, "url": searchURL}
	if in.DryRun() {
		return preview(data, "Would search the web for: %s", query), nil
	}
	if err := h.browse(searchURL); err != nil {
		return failf("Failed to open browser: %v", err), nil
	}
	return router.OK(fmt.Sprintf("Searching for: %s", query), data), nil
}

// normalizeURL adds https:// to a bare host and accepts only http(s) URLs
// with a host.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.String(), nil
}

func (h *Handlers) openURL(_ context.Context, in intent.Intent) (router.Outcome, error) {
	if strings.TrimSpace(in.Target) == "" {
		return router.Fail(router.KindValidation, "No URL specified"), nil
	}
	target, err := normalizeURL(in.Target)
	if err != nil {
		return router.Fail(router.KindValidation, fmt.Sprintf("Invalid URL %q: %v", in.Target, err)), nil
	}
	data := map[string]any{"url": target}
	if in.DryRun() {
		return preview(data, "Would open URL: %s", target), nil
	}
	if err := h.browse(target); err != nil {
		return failf("Failed to open browser: %v", err), nil
	}
	return router.OK(fmt.Sprintf("Opened %s", target), data), nil
}

func (h *Handlers) getWeather(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	location := strings.TrimSpace(in.Target)
	place := location
	if place == "" {
		place = "current location"
	}
	weatherURL := fmt.Sprintf(h.weatherURL, url.PathEscape(location))
	data := map[string]any{"location": place, "url": weatherURL}
	if in.DryRun() {
		return preview(data, "Would fetch weather for: %s", place), nil
	}

	if err := checkAllowedDomain(weatherURL, h.allowedDomains); err != nil {
		return failf("Weather lookup blocked: %v", err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, weatherURL, nil)
	if err != nil {
		return router.Outcome{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8")

	resp, err := h.client.Do(req)
	if err != nil {
		return failf("Weather request failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherBody))
	if err != nil {
		return router.Outcome{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return failf("Weather service returned %d", resp.StatusCode), nil
	}

	report := strings.TrimSpace(string(body))
	data["report"] = report
	return router.OK(report, data), nil
}

// checkAllowedDomain verifies the URL's host is in the allowlist.
// If no allowed domains are configured, all domains are permitted.
func checkAllowedDomain(rawURL string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	host := parsed.Hostname()
	for _, d := range allowedDomains {
		if host == d {
			return nil
		}
	}
	return fmt.Errorf("domain %q is not in the allowed list", host)
}
