package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/flowd-dev/flowd/runtime/floerr"
	"github.com/flowd-dev/flowd/tools"
)

const httpDefaultTimeout = 30 * time.Second

const httpSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "minLength": 1},
		"method": {"type": "string", "enum": ["GET", "POST", "PUT", "DELETE", "PATCH"]},
		"headers": {"type": "object"},
		"body": {}
	},
	"required": ["url"]
}`

func httpHandle() *tools.Handle {
	return &tools.Handle{
		ID:          "http",
		Name:        "HTTP Request",
		Description: "Performs an HTTP request and parses the response by content type.",
		Category:    "web",
		InputSchema: []byte(httpSchema),
		Invoke:      invokeHTTP,
	}
}

// invokeHTTP performs the request. The response body is parsed as JSON when
// the content type says so, and returned as text otherwise.
func invokeHTTP(ctx context.Context, input map[string]any, _ *tools.Context) (any, error) {
	url := stringField(input, "url")
	method := strings.ToUpper(stringField(input, "method"))
	if method == "" {
		method = http.MethodGet
	}

	var (
		body       io.Reader
		bodyIsJSON bool
	)
	if raw, ok := input["body"]; ok && raw != nil {
		switch t := raw.(type) {
		case string:
			body = strings.NewReader(t)
		default:
			encoded, err := json.Marshal(t)
			if err != nil {
				return nil, floerr.Wrap(floerr.KindExpressionError, "encode request body", err)
			}
			body = bytes.NewReader(encoded)
			bodyIsJSON = true
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, floerr.Wrapf(floerr.KindExpressionError, err, "build request %s %s", method, url)
	}
	if headers, ok := input["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, stringify(v))
		}
	}
	if bodyIsJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: httpDefaultTimeout}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, floerr.Wrap(floerr.KindCancelled, "request aborted", err)
		}
		return nil, floerr.Wrapf(floerr.KindProviderError, err, "%s %s", method, url)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, floerr.Wrap(floerr.KindProviderError, "read response body", err)
	}

	result := map[string]any{
		"status":     resp.StatusCode,
		"statusText": resp.Status,
	}
	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}
	result["headers"] = respHeaders

	if isJSONContentType(resp.Header.Get("Content-Type")) {
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err == nil {
			result["body"] = decoded
			return result, nil
		}
	}
	result["body"] = string(payload)
	return result, nil
}

func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
