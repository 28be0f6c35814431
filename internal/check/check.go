// Package check validates a raw CGI response against the contract of the hellocgi
// responder: two headers, a blank line, then an HTML document reporting the working
// directory and one list item per environment variable.
//
// It is used by `hellocgi check` to verify the binary's own output, a response captured
// to a file, or a deployed page fetched over HTTP.
package check

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/textproto"
	"slices"
	"strings"

	"go.followtheprocess.codes/hellocgi/internal/page"
	"golang.org/x/net/html"
)

// ErrInvalid is returned (wrapped) from [Response] when the response breaks the contract,
// the individual problems are reported through the [ErrorHandler].
var ErrInvalid = errors.New("invalid CGI response")

// An ErrorHandler may be provided to [Response]. If a problem is found and a non-nil handler
// was provided, it is called with the position info and error message.
type ErrorHandler func(pos Position, msg string)

// Position is a position in a response including name, line and column information.
// It can also express a range via StartCol and EndCol, this is useful for error reporting.
//
// Positions without names are considered invalid, in the case of stdout the string
// "stdout" may be used.
type Position struct {
	Name     string // Name of the response source e.g. a filename or URL
	Line     int    // Line number (1 indexed)
	StartCol int    // Start column (1 indexed)
	EndCol   int    // End column (1 indexed), EndCol == StartCol when pointing to a single character
}

// IsValid reports whether the [Position] describes a valid source position.
//
// The rules are:
//
//   - At least Name, Line and StartCol must be set (and non zero)
//   - EndCol cannot be 0, it's only allowed values are StartCol or any number greater than StartCol
func (p Position) IsValid() bool {
	if p.Name == "" || p.Line < 1 || p.StartCol < 1 || p.EndCol < 1 || p.EndCol < p.StartCol {
		return false
	}
	return true
}

// String returns a string representation of a [Position].
//
// It is formatted such that most text editors/terminals will be able to support clicking on it
// and navigating to the position:
//
//   - "name:line:start-end": valid position pointing to a range of text on the line
//   - "name:line:start": valid position pointing to a single character on the line (EndCol == StartCol)
func (p Position) String() string {
	if !p.IsValid() {
		return fmt.Sprintf(
			"BadPosition: {Name: %q, Line: %d, StartCol: %d, EndCol: %d}",
			p.Name,
			p.Line,
			p.StartCol,
			p.EndCol,
		)
	}

	if p.StartCol == p.EndCol {
		return fmt.Sprintf("%s:%d:%d", p.Name, p.Line, p.StartCol)
	}

	return fmt.Sprintf("%s:%d:%d-%d", p.Name, p.Line, p.StartCol, p.EndCol)
}

// Options configure what [Response] checks beyond the document structure.
type Options struct {
	// Cwd, if set, is the working directory the page must report.
	Cwd string

	// Env, if non-nil, is the environment the page must list, in order.
	Env page.Env

	// Escape expects the working directory and environment HTML-escaped, as written
	// by a page with Escape set.
	Escape bool

	// Relaxed allows headers other than Content-Type and Status and only requires
	// the media type and status code to match, for responses that have passed through
	// a web server.
	Relaxed bool
}

// header is a single parsed header line.
type header struct {
	value string
	line  int
}

// checker holds the state of a single check.
type checker struct {
	handler  ErrorHandler
	headers  map[string]header
	name     string
	lines    []string // src split on '\n' with any trailing '\r' removed
	options  Options
	bodyLine int // Line the body starts on (1 indexed)
	errs     int // Number of problems reported
}

// Response checks the raw CGI response in src, reporting every problem it finds to handler.
//
// name is used in reported positions. If any problems were found, the returned error wraps
// [ErrInvalid].
func Response(name string, src []byte, options Options, handler ErrorHandler) error {
	c := &checker{
		handler: handler,
		headers: make(map[string]header),
		name:    name,
		options: options,
	}

	// A trailing newline ends the last line, it doesn't start a new empty one
	for line := range strings.SplitSeq(strings.TrimSuffix(string(src), "\n"), "\n") {
		c.lines = append(c.lines, strings.TrimSuffix(line, "\r"))
	}

	if c.checkHeaders() {
		c.checkBody()
	}

	if c.errs > 0 {
		return fmt.Errorf("%w: %s has %d problem(s)", ErrInvalid, name, c.errs)
	}

	return nil
}

// checkHeaders checks the header block, it reports whether there is a body to go on and check.
func (c *checker) checkHeaders() bool {
	blank := -1
	for i, line := range c.lines {
		if line == "" {
			blank = i
			break
		}

		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			c.errorf(i+1, 1, len(line), "malformed header line %q, expected 'Name: value'", line)
			continue
		}

		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:colon]))
		if _, exists := c.headers[key]; exists {
			c.errorf(i+1, 1, colon, "duplicate %s header", key)
			continue
		}

		c.headers[key] = header{value: strings.TrimSpace(line[colon+1:]), line: i + 1}
	}

	if blank == -1 {
		last := len(c.lines)
		c.errorf(last, 1, len(c.lines[last-1]), "header block is not terminated by a blank line")
		return false
	}

	if blank == 0 {
		c.errorf(1, 1, 1, "response has no headers")
	}

	c.bodyLine = blank + 2

	contentType, ok := c.headers["Content-Type"]
	switch {
	case !ok:
		c.errorf(blank+1, 1, 1, "missing Content-Type header")
	case c.options.Relaxed:
		mediaType, _, err := mime.ParseMediaType(contentType.value)
		if err != nil || mediaType != page.ContentType {
			c.errorf(contentType.line, 1, len(c.lines[contentType.line-1]), "bad Content-Type %q, expected %q", contentType.value, page.ContentType)
		}
	case contentType.value != page.ContentType:
		c.errorf(contentType.line, 1, len(c.lines[contentType.line-1]), "bad Content-Type %q, expected %q", contentType.value, page.ContentType)
	}

	status, ok := c.headers["Status"]
	switch {
	case !ok:
		c.errorf(blank+1, 1, 1, "missing Status header")
	case c.options.Relaxed:
		code, _, _ := strings.Cut(status.value, " ")
		if code != "200" {
			c.errorf(status.line, 1, len(c.lines[status.line-1]), "bad Status %q, expected a 200", status.value)
		}
	case status.value != page.Status:
		c.errorf(status.line, 1, len(c.lines[status.line-1]), "bad Status %q, expected %q", status.value, page.Status)
	}

	if !c.options.Relaxed && blank != 2 && blank > 0 {
		c.errorf(blank, 1, len(c.lines[blank-1]), "expected exactly 2 header lines, got %d", blank)
	}

	return true
}

// checkBody parses the document and checks its content.
func (c *checker) checkBody() {
	lines := c.lines[c.bodyLine-1:]
	body := strings.Join(lines, "\n")

	// The list is written verbatim so markup in a value can change the parsed tree, when
	// an environment is expected the list is compared as text instead
	parsed := body
	if c.options.Env != nil {
		if start, end, ok := listBounds(lines); ok {
			parsed = strings.Join(slices.Concat(lines[:start+1], lines[end:]), "\n")
		}
	}

	doc, err := html.Parse(strings.NewReader(parsed))
	if err != nil {
		c.errorf(c.bodyLine, 1, 1, "body is not valid HTML: %v", err)
		return
	}

	if !strings.HasPrefix(strings.TrimSpace(body), "<!DOCTYPE html>") {
		c.errorf(c.bodyLine, 1, 1, "body does not start with <!DOCTYPE html>")
	}

	titles := findAll(doc, "title")
	switch {
	case len(titles) == 0:
		c.errorAt("<head", 0, "document has no <title>")
	case text(titles[0]) != page.Title:
		c.errorAt("<title>", 0, "title is %q, expected %q", text(titles[0]), page.Title)
	}

	headings := findAll(doc, "h1")
	switch {
	case len(headings) != 1:
		c.errorAt("<body", 0, "expected exactly 1 <h1>, got %d", len(headings))
	case text(headings[0]) != page.Heading:
		c.errorAt("<h1>", 0, "heading is %q, expected %q", text(headings[0]), page.Heading)
	}

	c.checkCwd(doc, body)

	if c.options.Env != nil {
		c.checkEnv(lines)
		return
	}

	c.checkList(doc)
}

// checkCwd checks the paragraph reporting the working directory.
func (c *checker) checkCwd(doc *html.Node, body string) {
	const prefix = "Current working directory: "

	if c.options.Cwd != "" {
		_, rest, ok := strings.Cut(body, "<p>"+prefix)
		if !ok {
			c.errorAt("<body", 0, "no paragraph reporting the working directory")
			return
		}

		got, _, _ := strings.Cut(rest, "</p>")
		want := c.options.Cwd
		if c.options.Escape {
			want = html.EscapeString(want)
		}

		if got != normalise(want) {
			c.errorAt(prefix, 0, "working directory is %q, expected %q", got, want)
		}

		return
	}

	for _, p := range findAll(doc, "p") {
		if strings.HasPrefix(text(p), prefix) {
			return
		}
	}

	c.errorAt("<body", 0, "no paragraph reporting the working directory")
}

// checkList checks the environment list items are well formed.
func (c *checker) checkList(doc *html.Node) {
	lists := findAll(doc, "ul")
	if len(lists) != 1 {
		c.errorAt("<body", 0, "expected exactly 1 <ul>, got %d", len(lists))
		return
	}

	for i, li := range findAll(lists[0], "li") {
		if _, ok := item(li); !ok {
			c.errorAt("<li>", i, "list item %d is not of the form <strong>KEY</strong>: VALUE", i+1)
		}
	}
}

// checkEnv compares the list items byte for byte against the expected environment.
func (c *checker) checkEnv(lines []string) {
	start, end, ok := listBounds(lines)
	if !ok {
		c.errorAt("<body", 0, "no <ul> listing the environment")
		return
	}

	rendered := page.Page{Escape: c.options.Escape}

	want := make([]string, 0, len(c.options.Env))
	for _, v := range c.options.Env {
		want = append(want, normalise(rendered.Item(v)))
	}

	got := items(lines[start+1 : end])

	// Grouped the same way as got so a value containing "\n<li>" can't throw the count off
	var wanted []listItem
	if len(want) != 0 {
		wanted = items(strings.Split(strings.Join(want, "\n"), "\n"))
	}

	// First line of the list in the whole response (1 indexed)
	first := c.bodyLine + start

	if len(got) != len(wanted) {
		c.errorf(first, 1, len("<ul>"), "expected %d list items, got %d", len(wanted), len(got))
		return
	}

	for i := range wanted {
		if got[i].text != wanted[i].text {
			line := first + 1 + got[i].line
			c.errorf(line, 1, len("<li>"), "list item %d is %q, expected %q", i+1, got[i].text, wanted[i].text)
		}
	}
}

// listItem is the raw text of a single list item, which may span several lines.
type listItem struct {
	text string
	line int // Offset of the item's first line from the first line inside the list
}

// items groups lines into list items, each starting on a line beginning with "<li>".
func items(lines []string) []listItem {
	var found []listItem
	for i, line := range lines {
		if len(found) == 0 || strings.HasPrefix(line, "<li>") {
			found = append(found, listItem{text: line, line: i})
			continue
		}

		found[len(found)-1].text += "\n" + line
	}
	return found
}

// listBounds returns the indices of the first "<ul>" line and the last "</ul>" line.
func listBounds(lines []string) (start, end int, ok bool) {
	start, end = slices.Index(lines, "<ul>"), -1
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] == "</ul>" {
			end = i
			break
		}
	}
	return start, end, start != -1 && end > start
}

// normalise matches how the response was split into lines, where a '\r' before a '\n' is lost.
func normalise(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// errorAt reports a problem at the nth (0 indexed) occurrence of needle in the body, or at
// the start of the body if needle cannot be found.
func (c *checker) errorAt(needle string, n int, format string, a ...any) {
	for i := c.bodyLine - 1; i < len(c.lines); i++ {
		line := c.lines[i]
		offset := 0
		for {
			idx := strings.Index(line[offset:], needle)
			if idx == -1 {
				break
			}

			if n == 0 {
				start := offset + idx + 1
				c.errorf(i+1, start, start+len(needle)-1, format, a...)
				return
			}

			n--
			offset += idx + len(needle)
		}
	}

	c.errorf(c.bodyLine, 1, 1, format, a...)
}

// errorf reports a problem at the given line and column range.
func (c *checker) errorf(line, start, end int, format string, a ...any) {
	c.errs++

	if c.handler == nil {
		return
	}

	start = max(start, 1)
	end = max(end, start)

	pos := Position{
		Name:     c.name,
		Line:     line,
		StartCol: start,
		EndCol:   end,
	}

	c.handler(pos, fmt.Sprintf(format, a...))
}

// item extracts the variable from a list item of the form <strong>KEY</strong>: VALUE.
func item(li *html.Node) (page.Var, bool) {
	strong := li.FirstChild
	if strong == nil || strong.Type != html.ElementNode || strong.Data != "strong" {
		return page.Var{}, false
	}

	rest := &bytes.Buffer{}
	for n := strong.NextSibling; n != nil; n = n.NextSibling {
		rest.WriteString(text(n))
	}

	value, ok := strings.CutPrefix(rest.String(), ": ")
	if !ok {
		return page.Var{}, false
	}

	return page.Var{Key: text(strong), Value: value}, true
}

// findAll returns every element named tag under n, in document order.
func findAll(n *html.Node, tag string) []*html.Node {
	var found []*html.Node
	for child := range n.Descendants() {
		if child.Type == html.ElementNode && child.Data == tag {
			found = append(found, child)
		}
	}
	return found
}

// text returns the concatenated text content of n.
func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}

	s := &strings.Builder{}
	for child := range n.Descendants() {
		if child.Type == html.TextNode {
			s.WriteString(child.Data)
		}
	}
	return s.String()
}
