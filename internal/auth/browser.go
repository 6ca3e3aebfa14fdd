package auth

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// BrowserNavigator prints the authorization URL and then tries to open it in
// the default browser. Failing to launch a browser is not an error: the
// printed URL can be opened by hand.
type BrowserNavigator struct {
	Out  io.Writer
	Open func(url string) error
}

func (n *BrowserNavigator) Navigate(_ context.Context, url string) error {
	out := n.Out
	if out == nil {
		out = os.Stderr
	}
	open := n.Open
	if open == nil {
		open = openBrowser
	}

	_, _ = fmt.Fprintf(out, "Open this URL in your browser to authenticate:\n  %s\n", url)
	_, _ = fmt.Fprintln(out, "Attempting to open browser automatically...")
	if err := open(url); err != nil {
		_, _ = fmt.Fprintf(out, "Could not open browser automatically: %v\n", err)
		_, _ = fmt.Fprintln(out, "Please open the URL manually in your browser.")
	}
	return nil
}

// PrintNavigator only prints the authorization URL, for hosts without a
// browser.
type PrintNavigator struct {
	Out io.Writer
}

func (n *PrintNavigator) Navigate(_ context.Context, url string) error {
	out := n.Out
	if out == nil {
		out = os.Stderr
	}
	_, err := fmt.Fprintf(out, "Open this URL in a browser to authenticate:\n  %s\n", url)
	return err
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	if shouldSkipAutoBrowserOpen() {
		return nil
	}

	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}

func shouldSkipAutoBrowserOpen() bool {
	// Never launch a browser under `go test`.
	if flag.Lookup("test.v") != nil {
		return true
	}

	noBrowser := strings.TrimSpace(strings.ToLower(os.Getenv("LE_NO_BROWSER")))
	return noBrowser == "1" || noBrowser == "true" || noBrowser == "yes"
}
