package hellocgi_test

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.followtheprocess.codes/hellocgi/internal/check"
	"go.followtheprocess.codes/hellocgi/internal/hellocgi"
	"go.followtheprocess.codes/hellocgi/internal/page"
	"go.followtheprocess.codes/test"
)

func TestRespond(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Chdir(t.TempDir())

	cwd, err := os.Getwd()
	test.Ok(t, err)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	app := hellocgi.New(stdout, stderr, false)

	err = app.Respond()
	test.Ok(t, err)

	got := stdout.String()

	test.True(t, strings.HasPrefix(got, "Content-Type: text/html\nStatus: 200 OK\n\n"))
	test.True(t, strings.Contains(got, "\n<li><strong>FOO</strong>: bar</li>\n"))
	test.True(t, strings.Contains(got, "<p>Current working directory: "+cwd+"</p>"))

	// Logs must never end up in the response
	options := check.Options{Cwd: cwd, Env: page.Environ()}
	err = check.Response("stdout", stdout.Bytes(), options, nil)
	test.Ok(t, err)
}

func TestRespondVerbatim(t *testing.T) {
	t.Setenv("QUERY_STRING", "name=world&lang=en")

	stdout := &bytes.Buffer{}
	app := hellocgi.New(stdout, &bytes.Buffer{}, false)

	err := app.Respond()
	test.Ok(t, err)

	got := stdout.String()
	test.True(t, strings.Contains(got, "\n<li><strong>QUERY_STRING</strong>: name=world&lang=en</li>\n"), test.Context("got %s", got))
}

func TestRespondEscape(t *testing.T) {
	t.Setenv(hellocgi.EscapeEnv, "1")
	t.Setenv("HTTP_USER_AGENT", "<script>")

	stdout := &bytes.Buffer{}
	app := hellocgi.New(stdout, &bytes.Buffer{}, false)

	err := app.Respond()
	test.Ok(t, err)

	got := stdout.String()
	test.True(t, strings.Contains(got, "\n<li><strong>HTTP_USER_AGENT</strong>: &lt;script&gt;</li>\n"), test.Context("got %s", got))

	// The self check expects the same escaping
	stdout.Reset()
	err = app.Check("", hellocgi.CheckOptions{})
	test.Ok(t, err)
}

func TestRespondDebug(t *testing.T) {
	t.Setenv(hellocgi.DebugEnv, "1")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	app := hellocgi.New(stdout, stderr, false)

	err := app.Respond()
	test.Ok(t, err)

	test.True(t, strings.Contains(stderr.String(), "Responding"))
	test.False(t, strings.Contains(stdout.String(), "Responding"))
}

func TestCheck(t *testing.T) {
	good := filepath.Join(t.TempDir(), "good.cgi")
	bad := filepath.Join(t.TempDir(), "bad.cgi")

	env := page.Env{{Key: "FOO", Value: "bar"}}
	test.Ok(t, os.WriteFile(good, []byte(page.New("/srv", env).String()), 0o644))
	test.Ok(t, os.WriteFile(bad, []byte("Content-Type: text/html\nStatus: 200 OK\n<!DOCTYPE html>\n"), 0o644))

	t.Run("self", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := hellocgi.New(stdout, stderr, false)

		err := app.Check("", hellocgi.CheckOptions{})
		test.Ok(t, err)

		test.True(t, strings.Contains(stdout.String(), "stdout is a valid response"))
	})

	t.Run("good", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := hellocgi.New(stdout, stderr, false)

		err := app.Check(good, hellocgi.CheckOptions{})
		test.Ok(t, err)

		test.True(t, strings.Contains(stdout.String(), fmt.Sprintf("%s is a valid response", good)))
	})

	t.Run("bad", func(t *testing.T) {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := hellocgi.New(stdout, stderr, false)

		err := app.Check(bad, hellocgi.CheckOptions{})
		test.Err(t, err)
		test.True(t, errors.Is(err, check.ErrInvalid))

		// Stderr should have the problem, stdout should be empty
		want := fmt.Sprintf("%s:3:1-15: header block is not terminated by a blank line", bad)
		test.True(t, strings.Contains(stderr.String(), want), test.Context("stderr: %s", stderr.String()))
		test.Equal(t, stdout.String(), "")
	})

	t.Run("missing", func(t *testing.T) {
		app := hellocgi.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Check(filepath.Join(t.TempDir(), "missing.cgi"), hellocgi.CheckOptions{})
		test.Err(t, err)
	})

	t.Run("url", func(t *testing.T) {
		body := strings.SplitN(page.New("/srv", env).String(), "\n\n", 2)[1]

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		}))
		defer server.Close()

		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		app := hellocgi.New(stdout, stderr, false)

		err := app.Check("", hellocgi.CheckOptions{URL: server.URL, Timeout: time.Second})
		test.Ok(t, err)

		test.True(t, strings.Contains(stdout.String(), server.URL+" is a valid response"))
	})

	t.Run("file and url", func(t *testing.T) {
		app := hellocgi.New(&bytes.Buffer{}, &bytes.Buffer{}, false)

		err := app.Check(good, hellocgi.CheckOptions{URL: "http://localhost"})
		test.Err(t, err)
	})
}
