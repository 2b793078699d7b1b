package shared

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// browserCommands maps GOOS to the launcher that opens a URL in the default browser.
var browserCommands = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"cmd", "/c", "start"},
}

// OpenBrowser opens the default system browser to url, used for OAuth consent screens.
func OpenBrowser(ctx context.Context, url string) error {
	rt := getRuntime()
	launcher, ok := browserCommands[rt]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	args := append(launcher[1:len(launcher):len(launcher)], url)
	if err := exec.CommandContext(ctx, launcher[0], args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
