package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/spf13/pflag"

	"github.com/digitalliving/life-engine-cli/internal/api"
	"github.com/digitalliving/life-engine-cli/internal/config"
)

const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitAuth        = 3
	exitNotFound    = 4
	exitForbidden   = 5
	exitRateLimited = 6
	exitServer      = 7
	exitNetwork     = 8
)

// exitRule maps a class of errors to an exit code. Rules are tried in order.
type exitRule struct {
	match func(err error, status int) bool
	code  int
}

var exitRules = []exitRule{
	{func(err error, _ int) bool { return errors.Is(err, pflag.ErrHelp) }, exitOK},
	{func(err error, _ int) bool { return api.IsUsageError(err) }, exitUsage},
	{func(err error, _ int) bool { return errors.Is(err, config.ErrNotConfigured) }, exitAuth},
	{func(err error, _ int) bool { return api.IsTransportError(err) }, exitNetwork},
	{func(_ error, s int) bool { return s == http.StatusUnauthorized }, exitAuth},
	{func(_ error, s int) bool { return s == http.StatusForbidden }, exitForbidden},
	{func(_ error, s int) bool { return s == http.StatusNotFound }, exitNotFound},
	{func(_ error, s int) bool { return s == http.StatusTooManyRequests }, exitRateLimited},
	{func(_ error, s int) bool { return s >= 500 }, exitServer},
	{func(_ error, s int) bool { return s >= 400 }, exitUsage},
	{func(err error, _ int) bool { return isNetworkError(err) }, exitNetwork},
	{func(err error, _ int) bool { return isCobraUsageError(err) }, exitUsage},
}

// ExitCode maps an error to a process exit code. A handledError carries the
// code computed when it was printed.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var handled *handledError
	if errors.As(err, &handled) {
		if handled.exitCode != 0 {
			return handled.exitCode
		}
		err = handled.err
	}

	status := api.StatusOf(err)
	for _, rule := range exitRules {
		if rule.match(err, status) {
			return rule.code
		}
	}
	return exitGeneric
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Cobra and flag validation errors are plain strings.
var usageIndicators = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"flag needs an argument",
	"accepts ",
	"requires at least",
	"requires exactly",
	"invalid argument",
	"invalid --",
	"invalid output format",
	"must be",
	"requires --",
}

func isCobraUsageError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, indicator := range usageIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
