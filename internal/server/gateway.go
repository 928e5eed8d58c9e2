package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Gateway forwards the conversation endpoints to the upstream assistant
// service and streams responses through unbuffered, so event frames reach
// the client as the upstream emits them.
type Gateway struct {
	upstream  *url.URL
	client    *http.Client
	jwtSecret []byte
}

// NewGateway creates a gateway for the given upstream base URL. The HTTP
// client carries no timeout: conversation streams stay open for the length
// of a run.
func NewGateway(upstreamURL string, jwtSecret []byte) (*Gateway, error) {
	u, err := url.Parse(strings.TrimSuffix(upstreamURL, "/"))
	if err != nil {
		return nil, err
	}
	return &Gateway{upstream: u, client: &http.Client{}, jwtSecret: jwtSecret}, nil
}

// forwardedHeaders are the request headers passed through to the upstream.
var forwardedHeaders = []string{
	"Content-Type",
	"Accept",
	"Authorization",
	"Cache-Control",
	"Last-Event-ID",
}

// ServeHTTP forwards the request and streams the response body back with a
// flush per chunk.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The credential is optional on conversation endpoints; when present
	// and valid, tag the request logs with the user it belongs to.
	userID := ""
	if bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); bearer != r.Header.Get("Authorization") {
		if sub, err := verifyToken(g.jwtSecret, bearer); err == nil {
			userID = sub
		} else {
			slog.Debug("ignoring invalid bearer credential", "error", err)
		}
	}

	target := *g.upstream
	target.Path = strings.TrimSuffix(target.Path, "/") + r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		Error(w, http.StatusBadGateway, "assistant backend unavailable")
		return
	}
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		slog.Error("gateway upstream request failed", "path", r.URL.Path, "error", err)
		Error(w, http.StatusBadGateway, "assistant backend unavailable")
		return
	}
	defer resp.Body.Close()

	slog.Info("gateway forwarding", "path", r.URL.Path, "status", resp.StatusCode, "user_id", userID)

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(newFlushWriter(w), resp.Body); err != nil {
		// The client or the upstream went away mid-stream; nothing to send.
		slog.Warn("gateway stream interrupted", "path", r.URL.Path, "error", err)
	}
}

// flushWriter flushes after every write so SSE frames are never held in the
// response buffer.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) io.Writer {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}
