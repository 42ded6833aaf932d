// The lambda binary serves the same API as cmd/api behind API Gateway.
// Events are converted to plain http.Requests and dispatched to the
// in-process router, so the two deployments cannot drift.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/karthik-ak-dev/pulse-ops/cmd/mainconfig"
	"github.com/karthik-ak-dev/pulse-ops/internal/app/bootstrap"
	appconfig "github.com/karthik-ak-dev/pulse-ops/internal/config"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildAPI(context.Background(), awsCfg, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble API", "error", err)
		os.Exit(1)
	}

	if rt.Consumer != nil {
		// The memory relay wants a long-lived process; the execution
		// environment freezes between invocations. Deploy the notify
		// worker with the SQS relay instead.
		logger.Warn("in-memory relay configured on lambda, notifications only progress during invocations")
		rt.Consumer.Start(context.Background())
	}

	logger.Info("starting pulse-ops lambda", "env", cfg.Env)
	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return serve(ctx, rt.Handler, evt)
	})
}

func serve(ctx context.Context, handler http.Handler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req, err := toRequest(ctx, evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid request"}, nil
	}

	rec := newResponseRecorder()
	handler.ServeHTTP(rec, req)

	return toResponse(rec), nil
}

func toRequest(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	if method == "" {
		method = http.MethodGet
	}

	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}
	if path == "" {
		path = "/"
	}

	body, err := decodeBody(evt)
	if err != nil {
		return nil, err
	}

	target := path
	if qs := strings.TrimSpace(evt.RawQueryString); qs != "" {
		target += "?" + qs
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	for name, value := range evt.Headers {
		req.Header.Set(name, value)
	}
	if len(evt.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(evt.Cookies, "; "))
	}
	if host := strings.TrimSpace(evt.RequestContext.DomainName); host != "" {
		req.Host = host
	}
	// RealIP middleware prefers X-Forwarded-For; this is the fallback.
	if ip := strings.TrimSpace(evt.RequestContext.HTTP.SourceIP); ip != "" {
		req.RemoteAddr = ip + ":0"
	}
	return req, nil
}

func toResponse(rec *responseRecorder) events.APIGatewayV2HTTPResponse {
	out := events.APIGatewayV2HTTPResponse{
		StatusCode: rec.status,
		Headers:    map[string]string{},
	}
	for name, values := range rec.header {
		if strings.EqualFold(name, "Set-Cookie") {
			out.Cookies = append(out.Cookies, values...)
			continue
		}
		out.Headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	body := rec.body.Bytes()
	if needsBase64(out.Headers) {
		out.Body = base64.StdEncoding.EncodeToString(body)
		out.IsBase64Encoded = true
	} else {
		out.Body = string(body)
	}
	return out
}

// needsBase64 reports whether the body must travel base64-encoded.
// Compressed responses are binary regardless of their content type.
func needsBase64(headers map[string]string) bool {
	if enc := headers["content-encoding"]; enc != "" && !strings.EqualFold(enc, "identity") {
		return true
	}
	ct := headers["content-type"]
	if ct == "" || strings.HasPrefix(ct, "text/") {
		return false
	}
	if strings.Contains(ct, "json") || strings.Contains(ct, "xml") || strings.Contains(ct, "javascript") {
		return false
	}
	return true
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// responseRecorder captures the router's response for conversion back to
// an API Gateway payload.
type responseRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) Write(p []byte) (int, error) { return r.body.Write(p) }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }
