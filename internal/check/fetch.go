package check

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultTimeout is the default overall timeout for [Fetch].
const DefaultTimeout = 10 * time.Second

var client = fasthttp.Client{
	Name: "hellocgi",

	DialDualStack: true,
}

// Fetch requests url and returns the response in CGI form, i.e. with the "HTTP/x.x 200 OK" status
// line turned into a "Status: 200 OK" header, so it can be passed to [Response] in relaxed mode.
//
// Responses with a non 2xx status are still returned, the status is for [Response] to judge.
func Fetch(url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	req, resp := fasthttp.AcquireRequest(), fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)

	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", url, err)
	}

	out := &bytes.Buffer{}
	if err := writeResponse(resp, out); err != nil {
		return nil, fmt.Errorf("could not read response from %s: %w", url, err)
	}

	return out.Bytes(), nil
}

// writeResponse writes resp to w with the status line rewritten as a CGI Status header.
func writeResponse(resp *fasthttp.Response, w *bytes.Buffer) error {
	head := resp.Header.Header()

	statusEnd := bytes.IndexByte(head, '\n')
	if statusEnd == -1 {
		return errors.New("response has no status line")
	}

	statusLine := head[:statusEnd+1]
	statusSpace := bytes.IndexByte(statusLine, ' ')
	if statusSpace == -1 {
		return fmt.Errorf("malformed status line %q", bytes.TrimSpace(statusLine))
	}

	w.WriteString("Status: ")
	w.Write(statusLine[statusSpace+1:])
	w.Write(head[statusEnd+1:])

	return resp.BodyWriteTo(w)
}
