// Package page implements the CGI responder: it renders the headers and the HTML
// document reporting the working directory and environment of the process.
package page

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"os"
	"runtime"
	"strings"
)

// ContentType is the value of the Content-Type header.
const ContentType = "text/html"

// Status is the value of the Status header.
const Status = "200 OK"

// Title is the title of the document.
const Title = "Python CGI Test"

// Heading is the text of the single <h1>.
const Heading = "Hello from Python CGI!"

// Var is a single environment variable.
type Var struct {
	Key   string // The variable name e.g. "PATH"
	Value string // The value, may be empty
}

// Title returns the variable name, it helps a [Var] satisfy the bubbles list.DefaultItem interface.
func (v Var) Title() string { return v.Key }

// Description returns the variable value.
func (v Var) Description() string { return v.Value }

// FilterValue returns the variable name, the browse list filters on it.
func (v Var) FilterValue() string { return v.Key }

// String returns the list item for the variable exactly as it appears in the rendered page,
// the key and value are written verbatim.
func (v Var) String() string {
	return fmt.Sprintf("<li><strong>%s</strong>: %s</li>", v.Key, v.Value)
}

// Escaped returns the list item for the variable with the key and value HTML-escaped, as
// it appears in a page with Escape set.
func (v Var) Escaped() string {
	return fmt.Sprintf("<li><strong>%s</strong>: %s</li>", html.EscapeString(v.Key), html.EscapeString(v.Value))
}

// Env is an ordered environment mapping, each key appears at most once.
type Env []Var

// Environ returns the environment of the current process.
func Environ() Env {
	return ParseEnviron(os.Environ())
}

// ParseEnviron builds an [Env] from "KEY=VALUE" strings in the form returned by [os.Environ].
//
// The order of environ is preserved and entries without an '=' are ignored. If a key is
// repeated, the first occurrence wins as it does for [os.Getenv]. On Windows a leading '='
// is part of the key (variables like "=C:"), elsewhere "=foo" is the empty key.
func ParseEnviron(environ []string) Env {
	return parseEnviron(environ, runtime.GOOS == "windows")
}

// parseEnviron implements [ParseEnviron], windows controls the leading '=' rule.
func parseEnviron(environ []string, windows bool) Env {
	env := make(Env, 0, len(environ))
	seen := make(map[string]bool, len(environ))

	for _, entry := range environ {
		skip := 0
		if windows && strings.HasPrefix(entry, "=") {
			skip = 1
		}

		idx := strings.IndexByte(entry[skip:], '=')
		if idx == -1 {
			continue
		}

		idx += skip
		key, value := entry[:idx], entry[idx+1:]

		if seen[key] {
			continue
		}

		seen[key] = true
		env = append(env, Var{Key: key, Value: value})
	}

	return env
}

// Get returns the value of key and whether it was present.
func (e Env) Get(key string) (string, bool) {
	for _, v := range e {
		if v.Key == key {
			return v.Value, true
		}
	}

	return "", false
}

// Page is a single CGI response document.
type Page struct {
	Cwd    string // Working directory of the process
	Env    Env    // Environment of the process, one list item per entry
	Escape bool   // HTML-escape the working directory, keys and values, off by default
}

// New returns a [Page] reporting cwd and env.
func New(cwd string, env Env) Page {
	return Page{
		Cwd: cwd,
		Env: env,
	}
}

// Current returns the [Page] for the running process, it fails only if the working
// directory cannot be determined.
func Current() (Page, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Page{}, fmt.Errorf("could not get working directory: %w", err)
	}

	return New(cwd, Environ()), nil
}

// WriteTo writes the full CGI response (headers, blank line and document) to w.
//
// It implements [io.WriterTo].
func (p Page) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	buf := bufio.NewWriter(cw)

	fmt.Fprintf(buf, "Content-Type: %s\n", ContentType)
	fmt.Fprintf(buf, "Status: %s\n", Status)
	buf.WriteString("\n")

	buf.WriteString("<!DOCTYPE html>\n")
	buf.WriteString("<html>\n")
	fmt.Fprintf(buf, "<head><title>%s</title></head>\n", Title)
	buf.WriteString("<body>\n")
	fmt.Fprintf(buf, "<h1>%s</h1>\n", Heading)
	cwd := p.Cwd
	if p.Escape {
		cwd = html.EscapeString(cwd)
	}

	fmt.Fprintf(buf, "<p>Current working directory: %s</p>\n", cwd)
	buf.WriteString("<p>Environment variables:</p>\n")
	buf.WriteString("<ul>\n")

	for _, v := range p.Env {
		buf.WriteString(p.Item(v))
		buf.WriteByte('\n')
	}

	buf.WriteString("</ul>\n")
	buf.WriteString("</body>\n")
	buf.WriteString("</html>\n")

	// bufio.Writer is sticky on errors so the first one surfaces here
	err := buf.Flush()
	return cw.n, err
}

// Item returns the list item for v as this page renders it.
func (p Page) Item(v Var) string {
	if p.Escape {
		return v.Escaped()
	}
	return v.String()
}

// String renders the full response as a string.
func (p Page) String() string {
	s := &strings.Builder{}
	p.WriteTo(s) //nolint:errcheck // strings.Builder never errors
	return s.String()
}

// countWriter counts bytes successfully written to w.
type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
