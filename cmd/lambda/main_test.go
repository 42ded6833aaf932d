package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func gatewayEvent(method, path, rawQuery string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath:        path,
		RawQueryString: rawQuery,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			DomainName: "api.pulseops.example",
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   method,
				Path:     path,
				SourceIP: "203.0.113.9",
			},
		},
	}
}

func TestServeConvertsRequest(t *testing.T) {
	var got struct {
		method string
		path   string
		query  string
		auth   string
		host   string
		body   string
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.auth = r.Header.Get("Authorization")
		got.host = r.Host
		got.body = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	})

	evt := gatewayEvent(http.MethodPost, "/v1/queues", "clinicId=c1")
	evt.Headers = map[string]string{"authorization": "Bearer token-1"}
	evt.Body = `{"doctorId":"doc-1"}`

	resp, err := serve(context.Background(), handler, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.method != http.MethodPost || got.path != "/v1/queues" || got.query != "clinicId=c1" {
		t.Fatalf("request converted wrong: %+v", got)
	}
	if got.auth != "Bearer token-1" {
		t.Fatalf("expected authorization header, got %q", got.auth)
	}
	if got.host != "api.pulseops.example" {
		t.Fatalf("expected gateway domain as host, got %q", got.host)
	}
	if got.body != `{"doctorId":"doc-1"}` {
		t.Fatalf("unexpected body %q", got.body)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	if resp.IsBase64Encoded {
		t.Fatalf("json body must not be base64 encoded")
	}
	if !strings.Contains(resp.Body, `"ok":"yes"`) {
		t.Fatalf("unexpected response body %q", resp.Body)
	}
	if resp.Headers["content-type"] != "application/json" {
		t.Fatalf("expected content-type header, got %+v", resp.Headers)
	}
}

func TestServeDecodesBase64Body(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})

	evt := gatewayEvent(http.MethodPost, "/v1/tokens/tok_1/cancel", "")
	evt.Body = base64.StdEncoding.EncodeToString([]byte(`{"reason":"left"}`))
	evt.IsBase64Encoded = true

	resp, err := serve(context.Background(), handler, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Body != `{"reason":"left"}` {
		t.Fatalf("expected decoded body to round trip, got %q", resp.Body)
	}
}

func TestServeRejectsInvalidBase64(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	evt := gatewayEvent(http.MethodPost, "/v1/queues", "")
	evt.Body = "not-base64"
	evt.IsBase64Encoded = true

	resp, err := serve(context.Background(), handler, evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestServeEncodesBinaryResponse(t *testing.T) {
	payload := []byte{0x1f, 0x8b, 0x00, 0xff}
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(payload)
	})

	resp, err := serve(context.Background(), handler, gatewayEvent(http.MethodGet, "/v1/queues", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsBase64Encoded {
		t.Fatalf("compressed body must be base64 encoded")
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Body)
	if err != nil {
		t.Fatalf("body is not valid base64: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Fatalf("binary body corrupted in transit")
	}
}

func TestServeLiftsCookies(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "a", Value: "1"})
		http.SetCookie(w, &http.Cookie{Name: "b", Value: "2"})
		w.WriteHeader(http.StatusOK)
	})

	resp, err := serve(context.Background(), handler, gatewayEvent(http.MethodGet, "/healthz", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %v", resp.Cookies)
	}
	if _, ok := resp.Headers["set-cookie"]; ok {
		t.Fatalf("set-cookie must move to the cookies field")
	}
}

func TestNeedsBase64(t *testing.T) {
	if needsBase64(map[string]string{"content-type": "application/json"}) {
		t.Fatalf("json is text")
	}
	if needsBase64(map[string]string{"content-type": "text/html"}) {
		t.Fatalf("html is text")
	}
	if !needsBase64(map[string]string{"content-type": "application/json", "content-encoding": "gzip"}) {
		t.Fatalf("gzip output is binary")
	}
	if !needsBase64(map[string]string{"content-type": "application/octet-stream"}) {
		t.Fatalf("octet-stream is binary")
	}
}
