package builtin

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const browserTimeout = 30 * time.Second

const browserSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "minLength": 1}
	},
	"required": ["url"]
}`

func browserHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "browser",
		Name:        "Web Browser",
		Description: "Fetches a page and returns its title and visible text.",
		Category:    "web",
		InputSchema: []byte(browserSchema),
		Invoke:      invokeBrowser,
	}
}

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	dropRe   = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	spacesRe = regexp.MustCompile(`\s+`)
)

func invokeBrowser(ctx context.Context, input map[string]any, _ *tools.Context) (any, error) {
	url := stringField(input, "url")
	page, err := fetchPage(ctx, url)
	if err != nil {
		return nil, err
	}
	title := ""
	if m := titleRe.FindStringSubmatch(page); m != nil {
		title = strings.TrimSpace(m[1])
	}
	return map[string]any{
		"url":   url,
		"title": title,
		"text":  visibleText(page),
	}, nil
}

func fetchPage(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, browserTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", floerr.Wrapf(floerr.KindExpressionError, err, "build request for %s", url)
	}
	req.Header.Set("User-Agent", "flowd/1.0")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", floerr.Wrap(floerr.KindCancelled, "fetch aborted", err)
		}
		return "", floerr.Wrapf(floerr.KindProviderError, err, "fetch %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", floerr.Newf(floerr.KindProviderError, "fetch %s: %s", url, resp.Status)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", floerr.Wrap(floerr.KindProviderError, "read page", err)
	}
	return string(payload), nil
}

// visibleText strips markup and collapses whitespace. Good enough for feeding
// page content to a model; not a rendering engine.
func visibleText(page string) string {
	page = dropRe.ReplaceAllString(page, " ")
	page = tagRe.ReplaceAllString(page, " ")
	return strings.TrimSpace(spacesRe.ReplaceAllString(page, " "))
}
