package actions

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

// DefaultApps returns the built-in app name to command mapping for goos.
func DefaultApps(goos string) map[string][]string {
	switch goos {
	case "darwin":
		return map[string][]string{
			"chrome":     {"open", "-a", "Google Chrome"},
			"firefox":    {"open", "-a", "Firefox"},
			"safari":     {"open", "-a", "Safari"},
			"vscode":     {"open", "-a", "Visual Studio Code"},
			"code":       {"open", "-a", "Visual Studio Code"},
			"terminal":   {"open", "-a", "Terminal"},
			"finder":     {"open", "-a", "Finder"},
			"calculator": {"open", "-a", "Calculator"},
			"spotify":    {"open", "-a", "Spotify"},
		}
	case "windows":
		return map[string][]string{
			"chrome":     {"cmd", "/C", "start", "", "chrome"},
			"firefox":    {"cmd", "/C", "start", "", "firefox"},
			"edge":       {"cmd", "/C", "start", "", "msedge"},
			"vscode":     {"cmd", "/C", "start", "", "code"},
			"code":       {"cmd", "/C", "start", "", "code"},
			"notepad":    {"notepad"},
			"explorer":   {"explorer"},
			"calculator": {"calc"},
			"terminal":   {"cmd", "/C", "start", "", "cmd"},
		}
	default:
		return map[string][]string{
			"chrome":       {"google-chrome"},
			"firefox":      {"firefox"},
			"vscode":       {"code"},
			"code":         {"code"},
			"gedit":        {"gedit"},
			"text editor":  {"gedit"},
			"nautilus":     {"nautilus"},
			"files":        {"nautilus"},
			"file manager": {"nautilus"},
			"spotify":      {"spotify"},
			"terminal":     {"gnome-terminal"},
			"calculator":   {"gnome-calculator"},
		}
	}
}

// appCommand resolves an app name. Unmapped names are launched directly.
func (h *Handlers) appCommand(name string) []string {
	key := strings.ToLower(strings.TrimSpace(name))
	if argv, ok := h.apps[key]; ok {
		return argv
	}
	switch h.goos {
	case "darwin":
		return []string{"open", "-a", name}
	case "windows":
		return []string{"cmd", "/C", "start", "", name}
	default:
		return []string{key}
	}
}

func (h *Handlers) openApp(_ context.Context, in intent.Intent) (router.Outcome, error) {
	if in.Target == "" {
		return router.Fail(router.KindValidation, "No application specified"), nil
	}
	argv := h.appCommand(in.Target)
	data := map[string]any{"app": in.Target, "command": strings.Join(argv, " ")}

	if in.DryRun() {
		return preview(data, "Would open app: %s", in.Target), nil
	}
	if err := h.runner.Start(argv[0], argv[1:]...); err != nil {
		return failf("Failed to open %s: %v", in.Target, err), nil
	}
	h.logger.Info("app opened", zap.String("app", in.Target))
	return router.OK(fmt.Sprintf("Opened %s", in.Target), data), nil
}

func (h *Handlers) closeApp(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	if strings.TrimSpace(in.Target) == "" {
		return router.Fail(router.KindValidation, "No application specified"), nil
	}
	if in.DryRun() {
		return preview(map[string]any{"app": in.Target}, "Would close app: %s", in.Target), nil
	}
	if h.isProtected(in.Target) {
		return failf("Cannot close protected process: %s", in.Target), nil
	}

	matches, err := h.matchProcesses(ctx, in.Target)
	if err != nil {
		return router.Outcome{}, err
	}
	if len(matches) == 0 {
		return failf("No running application found matching: %s", in.Target), nil
	}

	if out, ok := h.ask(ctx, confirm.Request{
		Action:      "close_app",
		Target:      in.Target,
		Description: fmt.Sprintf("Close application %q - this may lose unsaved work", in.Target),
	}); !ok {
		return out, nil
	}

	killed := h.terminateAll(ctx, matches)
	if len(killed) == 0 {
		return failf("Failed to close %s", in.Target), nil
	}
	return router.OK(fmt.Sprintf("Closed %s", in.Target), map[string]any{
		"app":          in.Target,
		"closed_count": len(killed),
	}), nil
}

func (h *Handlers) switchApp(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	return h.activate(ctx, in, "Would switch to app: %s", "Switched to %s")
}

func (h *Handlers) focusWindow(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	return h.activate(ctx, in, "Would focus window: %s", "Focused %s")
}

func (h *Handlers) activate(ctx context.Context, in intent.Intent, previewMsg, doneMsg string) (router.Outcome, error) {
	if in.Target == "" {
		return router.Fail(router.KindValidation, "No window specified"), nil
	}
	if in.DryRun() {
		return preview(map[string]any{"window": in.Target}, previewMsg, in.Target), nil
	}

	var argv []string
	switch h.goos {
	case "darwin":
		argv = []string{"osascript", "-e", fmt.Sprintf("tell application %q to activate", in.Target)}
	case "linux":
		argv = []string{"wmctrl", "-a", in.Target}
	default:
		return failf("Window control is not supported on %s", h.goos), nil
	}
	if out, err := h.runner.Output(ctx, argv[0], argv[1:]...); err != nil {
		return failf("Failed to activate %s: %v %s", in.Target, err, strings.TrimSpace(string(out))), nil
	}
	return router.OK(fmt.Sprintf(doneMsg, in.Target), map[string]any{"window": in.Target}), nil
}

// coordinates reads x/y from the options, falling back to an "x,y" target
// when either is absent.
func coordinates(in intent.Intent) (int, int, bool) {
	x, okX := in.Options.Int(intent.OptX)
	y, okY := in.Options.Int(intent.OptY)
	if okX && okY {
		return x, y, true
	}
	parts := strings.Split(in.Target, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	px, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	py, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return px, py, true
}

func (h *Handlers) clickAt(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	x, y, ok := coordinates(in)
	if !ok {
		return router.Fail(router.KindValidation, "Invalid coordinates specified"), nil
	}
	data := map[string]any{"x": x, "y": y}
	if in.DryRun() {
		return preview(data, "Would click at (%d, %d)", x, y), nil
	}

	var argv []string
	switch h.goos {
	case "darwin":
		argv = []string{"cliclick", fmt.Sprintf("c:%d,%d", x, y)}
	case "linux":
		argv = []string{"xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "click", "1"}
	default:
		return failf("Mouse control is not supported on %s", h.goos), nil
	}
	if _, err := h.runner.Output(ctx, argv[0], argv[1:]...); err != nil {
		return failf("Failed to click at (%d, %d): %v", x, y, err), nil
	}
	return router.OK(fmt.Sprintf("Clicked at (%d, %d)", x, y), data), nil
}

func (h *Handlers) typeText(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	if in.Target == "" {
		return router.Fail(router.KindValidation, "No text specified"), nil
	}
	data := map[string]any{"length": len(in.Target)}
	if in.DryRun() {
		return preview(data, "Would type text: %s", in.Target), nil
	}

	var argv []string
	switch h.goos {
	case "darwin":
		argv = []string{"osascript", "-e", fmt.Sprintf("tell application \"System Events\" to keystroke %q", in.Target)}
	case "linux":
		argv = []string{"xdotool", "type", "--delay", "20", "--", in.Target}
	default:
		return failf("Keyboard control is not supported on %s", h.goos), nil
	}
	if _, err := h.runner.Output(ctx, argv[0], argv[1:]...); err != nil {
		return failf("Failed to type text: %v", err), nil
	}
	return router.OK(fmt.Sprintf("Typed %d characters", len(in.Target)), data), nil
}

func (h *Handlers) screenshot(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	path := in.Target
	if path == "" || strings.EqualFold(path, "screen") {
		name := "screenshot_" + h.now().Format("20060102_150405") + ".png"
		path = filepath.Join(h.home, "Pictures", name)
	}
	data := map[string]any{"path": path}
	if in.DryRun() {
		return preview(data, "Would take screenshot: %s", path), nil
	}

	var argv []string
	switch h.goos {
	case "darwin":
		argv = []string{"screencapture", "-x", path}
	case "linux":
		argv = []string{"gnome-screenshot", "-f", path}
	default:
		return failf("Screenshots are not supported on %s", h.goos), nil
	}
	if _, err := h.runner.Output(ctx, argv[0], argv[1:]...); err != nil {
		return failf("Failed to take screenshot: %v", err), nil
	}
	return router.OK(fmt.Sprintf("Screenshot saved to %s", path), data), nil
}
