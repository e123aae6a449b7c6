package reach

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultConnectTimeout is used for HTTPCheck.ConnectTimeout when unset,
// matching "curl --connect-timeout 3".
const DefaultConnectTimeout = 3 * time.Second

// exit status of sh when the command was not found
const exitNotFound = 127

// curl exit codes which mean no HTTP response was received
var curlReasons = map[int]string{
	5:  "could not resolve proxy",
	6:  "could not resolve host",
	7:  "failed to connect",
	28: "operation timed out",
	35: "tls handshake failed",
	52: "empty reply from server",
	56: "failure receiving data",
	60: "certificate verification failed",
}

// HTTPCheck retrieves the status code of URL with curl. The connect
// timeout is separate from the command timeout so that "could not
// connect" and "answered with another status" stay distinguishable.
type HTTPCheck struct {
	URL            string
	ConnectTimeout time.Duration // defaults to DefaultConnectTimeout
	MaxTime        time.Duration // optional limit for the whole transfer
}

// HTTPStatus is the outcome of an HTTPCheck. Connected and Code are two
// independent results: Connected is false when no HTTP response arrived
// (resolution, connect or TLS failure, timeout), Code holds curl's output
// verbatim ("200", "301", "000").
type HTTPStatus struct {
	URL       string
	Connected bool
	Code      string
	Reason    string // why no response arrived, if known
	Result    CommandResult
}

// Matches reports whether a response with exactly this status code arrived.
func (s HTTPStatus) Matches(code string) bool {
	return s.Connected && s.Code == code
}

// Command returns the shell command performing the check.
func (h HTTPCheck) Command() string {
	ct := h.ConnectTimeout
	if ct <= 0 {
		ct = DefaultConnectTimeout
	}

	var b strings.Builder
	b.WriteString("curl --connect-timeout ")
	b.WriteString(seconds(ct))
	if h.MaxTime > 0 {
		b.WriteString(" --max-time ")
		b.WriteString(seconds(h.MaxTime))
	}
	b.WriteString(" -o /dev/null -s -w '%{http_code}' ")
	b.WriteString(shellQuote(h.URL))
	return b.String()
}

// Run executes the check with runner.
func (h HTTPCheck) Run(ctx context.Context, runner CommandRunner, timeout time.Duration) (HTTPStatus, error) {
	if strings.TrimSpace(h.URL) == "" {
		return HTTPStatus{}, probeError(CheckHTTP, h.URL, errors.New("empty url"))
	}

	res, err := runner.Run(ctx, h.Command(), timeout)
	if err != nil {
		return HTTPStatus{URL: h.URL, Result: res}, probeError(CheckHTTP, h.URL, err)
	}
	if res.ExitCode == exitNotFound {
		return HTTPStatus{URL: h.URL, Result: res}, probeError(CheckHTTP, h.URL,
			fmt.Errorf("curl not available: %s", strings.TrimSpace(res.Stderr)))
	}
	return ClassifyHTTP(h.URL, res), nil
}

// ClassifyHTTP interprets the result of an HTTPCheck command.
func ClassifyHTTP(url string, res CommandResult) HTTPStatus {
	st := HTTPStatus{
		URL:    url,
		Code:   res.Stdout,
		Result: res,
	}

	code := strings.TrimSpace(res.Stdout)
	switch {
	case res.TimedOut:
		st.Reason = "command timed out"
	case code == "" || code == "000":
		st.Reason = curlReasons[res.ExitCode]
		if st.Reason == "" {
			st.Reason = fmt.Sprintf("no response (exit status %d)", res.ExitCode)
		}
	default:
		st.Connected = true
	}
	return st
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// shellQuote quotes s for use as a single sh word.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
