package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/lavalink3"
)

const discardLimit = 64 << 10

// Request sends one REST call and translates the answer to the canonical
// model. 204 and any status other than 200 yield (nil, nil); the non-200
// case leaves a debug line with the status and redacted headers.
func (d *Lavalink3) Request(ctx context.Context, req protocol.Request) (json.RawMessage, error) {
	path := req.Path
	if req.UseSessionID {
		id := d.Session().ID
		if id == "" {
			return nil, protocol.ErrSessionNotReady
		}
		path = req.ResolvePath(id)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := req.Target(path)

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(lavalink3.ConvertRequest(req.Body))
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %w", protocol.ErrMalformedPayload, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, d.httpURL+target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s %s: %w", protocol.ErrTransport, method, target, err)
	}
	httpReq.Header.Set("Authorization", d.endpoint.Auth)
	httpReq.Header.Set("User-Agent", d.userAgent())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		observability.RecordNodeRequest(d.Name(), method, observability.StatusTransportError, time.Since(start))
		d.debug("%s %s failed: %v", method, target, err)
		return nil, fmt.Errorf("%w: %s %s: %w", protocol.ErrTransport, method, target, err)
	}
	defer resp.Body.Close()
	observability.RecordNodeRequest(d.Name(), method, resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusNoContent:
		d.debug("%s %s: no content", method, target)
		return nil, nil
	case http.StatusOK:
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, discardLimit))
		d.debug("%s %s: unexpected status %d headers %s",
			method, target, resp.StatusCode, redactHeaders(httpReq.Header))
		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		d.debug("%s %s: read body: %v", method, target, err)
		return nil, fmt.Errorf("%w: read %s %s: %w", protocol.ErrTransport, method, target, err)
	}
	out, err := convertResponse(raw)
	if err != nil {
		d.debug("%s %s: %v", method, target, err)
		return nil, err
	}
	d.debug("%s %s", method, target)
	return out, nil
}

var jsonNull = []byte("null")

// isAbsent reports whether a trimmed body carries no value.
func isAbsent(trimmed []byte) bool {
	return len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull)
}

// convertResponse maps a 200 body onto the canonical shape. Bodies that are
// neither load results nor player envelopes pass through untouched.
func convertResponse(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if isAbsent(trimmed) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: response: %w", protocol.ErrMalformedPayload, err)
	}

	switch v := body.(type) {
	case map[string]any:
		if _, ok := v["loadType"]; ok {
			result, err := lavalink3.ConvertLoadResult(trimmed)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		}
		if !lavalink3.IsPlayerEnvelope(v) {
			return trimmed, nil
		}
		player, err := lavalink3.ConvertPlayer(v)
		if err != nil {
			return nil, err
		}
		return json.Marshal(player)
	case []any:
		changed := false
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok || !lavalink3.IsPlayerEnvelope(m) {
				continue
			}
			player, err := lavalink3.ConvertPlayer(m)
			if err != nil {
				return nil, err
			}
			v[i] = player
			changed = true
		}
		if !changed {
			return trimmed, nil
		}
		return json.Marshal(v)
	default:
		return trimmed, nil
	}
}

func redactHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.Join(h[k], ",")
		if k == "Authorization" {
			v = "[redacted]"
		}
		parts = append(parts, k+"="+v)
	}
	return "{" + strings.Join(parts, " ") + "}"
}
