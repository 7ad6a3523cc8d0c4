package builtin

import (
	"context"
	"regexp"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const scraperSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "minLength": 1},
		"pattern": {"type": "string"},
		"extract": {"type": "string", "enum": ["links", "text", "pattern"]}
	},
	"required": ["url"]
}`

func scraperHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "scraper",
		Name:        "Web Scraper",
		Description: "Fetches a page and extracts links, text, or regex pattern matches.",
		Category:    "web",
		InputSchema: []byte(scraperSchema),
		Invoke:      invokeScraper,
	}
}

var hrefRe = regexp.MustCompile(`(?i)<a[^>]+href="([^"]+)"`)

func invokeScraper(ctx context.Context, input map[string]any, _ *tools.Context) (any, error) {
	url := stringField(input, "url")
	page, err := fetchPage(ctx, url)
	if err != nil {
		return nil, err
	}

	extract := stringField(input, "extract")
	if extract == "" {
		if stringField(input, "pattern") != "" {
			extract = "pattern"
		} else {
			extract = "text"
		}
	}

	switch extract {
	case "links":
		matches := hrefRe.FindAllStringSubmatch(page, -1)
		links := make([]any, 0, len(matches))
		for _, m := range matches {
			links = append(links, m[1])
		}
		return links, nil

	case "pattern":
		pattern := stringField(input, "pattern")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, floerr.Wrapf(floerr.KindExpressionError, err, "compile pattern %q", pattern)
		}
		var out []any
		for _, m := range re.FindAllStringSubmatch(page, -1) {
			if len(m) > 1 {
				out = append(out, m[1])
			} else {
				out = append(out, m[0])
			}
		}
		return out, nil

	case "text":
		return visibleText(page), nil

	default:
		return nil, floerr.Newf(floerr.KindMissingNodeData, "scraper: unsupported extract mode %q", extract)
	}
}
