package server_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.followtheprocess.codes/hellocgi/internal/page"
	"go.followtheprocess.codes/hellocgi/internal/server"
	"go.followtheprocess.codes/log"
	"go.followtheprocess.codes/test"
	"go.uber.org/goleak"
)

// childEnv is set by the tests on the CGI program so the test binary knows to act as one.
const childEnv = "HELLOCGI_TEST_CGI_CHILD=1"

// TestMain lets the test binary double as the CGI program, the server runs os.Args[0]
// with childEnv set and it responds just like hellocgi does.
func TestMain(m *testing.M) {
	if os.Getenv("HELLOCGI_TEST_CGI_CHILD") == "1" {
		p, err := page.Current()
		if err != nil {
			os.Stderr.WriteString(err.Error() + "\n")
			os.Exit(1)
		}

		if _, err := p.WriteTo(os.Stdout); err != nil {
			os.Exit(1)
		}

		os.Exit(0)
	}

	os.Exit(m.Run())
}

func TestHandler(t *testing.T) {
	dir := t.TempDir()

	// The child reports the resolved path e.g. /private/var rather than /var on macOS
	resolved, err := filepath.EvalSymlinks(dir)
	test.Ok(t, err)

	logs := &syncBuffer{}
	srv := server.New(
		server.Config{Script: os.Args[0], Dir: dir, Env: []string{childEnv}},
		log.New(logs),
	)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := ts.Client().Get(ts.URL + "/hello/world?name=test")
	test.Ok(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	test.Ok(t, err)

	got := string(body)

	test.Equal(t, res.StatusCode, http.StatusOK)
	test.Equal(t, res.Header.Get("Content-Type"), "text/html")

	test.True(t, strings.HasPrefix(got, "<!DOCTYPE html>\n"), test.Context("got %s", got))
	test.True(t, strings.Contains(got, "<h1>Hello from Python CGI!</h1>"))
	test.True(t, strings.Contains(got, "<p>Current working directory: "+resolved+"</p>"))
	test.True(t, strings.Contains(got, "<li><strong>REQUEST_METHOD</strong>: GET</li>"))
	test.True(t, strings.Contains(got, "<li><strong>QUERY_STRING</strong>: name=test</li>"))
	test.True(t, strings.Contains(got, "<li><strong>PATH_INFO</strong>: /hello/world</li>"))
	test.True(t, strings.Contains(got, "<li><strong>REDIRECT_STATUS</strong>: 200</li>"))

	test.True(t, strings.Contains(logs.String(), "Request"))
}

func TestHandlerBadScript(t *testing.T) {
	srv := server.New(
		server.Config{Script: filepath.Join(t.TempDir(), "missing")},
		log.New(io.Discard),
	)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	srv.Handler().ServeHTTP(rec, req)

	test.Equal(t, rec.Code, http.StatusInternalServerError)
}

func TestServe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	test.Ok(t, err)

	srv := server.New(
		server.Config{Script: os.Args[0], Env: []string{childEnv}, ShutdownTimeout: time.Second},
		log.New(io.Discard),
	)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ctx, ln)
	}()

	client := &http.Client{Timeout: 5 * time.Second}

	res, err := client.Get("http://" + ln.Addr().String() + "/")
	test.Ok(t, err)

	body, err := io.ReadAll(res.Body)
	test.Ok(t, err)
	test.Ok(t, res.Body.Close())

	test.Equal(t, res.StatusCode, http.StatusOK)
	test.True(t, bytes.Contains(body, []byte("<title>Python CGI Test</title>")))

	client.CloseIdleConnections()
	cancel()

	select {
	case err := <-errs:
		test.Ok(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunBadAddr(t *testing.T) {
	srv := server.New(server.Config{Addr: "not an address"}, log.New(io.Discard))

	err := srv.Run(t.Context())
	test.Err(t, err)
}

// syncBuffer is a [bytes.Buffer] safe to write from the server's goroutines.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
