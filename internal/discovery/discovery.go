// Package discovery finds a debuggable page among candidate remote-debugging
// ports. It is a thin collaborator: the rest of devprobe only ever sees the
// resulting cdp.DebugTarget.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"devprobe/internal/cdp"
	"devprobe/internal/logging"
)

// ErrNoTarget is returned when no candidate port exposes a page target.
var ErrNoTarget = errors.New("no debuggable page found")

// Resolver queries /json/list on each candidate port.
type Resolver struct {
	client  *http.Client
	timeout time.Duration
}

// NewResolver creates a resolver whose per-port query is bounded by timeout.
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{client: &http.Client{}, timeout: timeout}
}

// Resolve returns the first page target with a socket endpoint, trying ports
// in order. Ports that refuse, time out or answer garbage are skipped.
func (r *Resolver) Resolve(ctx context.Context, host string, ports []int) (cdp.DebugTarget, error) {
	log := logging.Get(logging.CategoryDiscovery)
	var lastErr error
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return cdp.DebugTarget{}, err
		}
		targets, err := r.List(ctx, host, port)
		if err != nil {
			log.Debug("port %d: %v", port, err)
			lastErr = err
			continue
		}
		for _, t := range targets {
			if t.IsPage() && t.SocketEndpoint != "" {
				log.Debug("resolved %s on port %d", t, port)
				return t, nil
			}
		}
		log.Debug("port %d: no page targets among %d", port, len(targets))
	}

	err := ErrNoTarget
	if lastErr != nil {
		err = fmt.Errorf("%w: %v", ErrNoTarget, lastErr)
	}
	return cdp.DebugTarget{}, &cdp.ConnectionError{Endpoint: describe(host, ports), Err: err}
}

// List returns every target the port advertises.
func (r *Resolver) List(ctx context.Context, host string, port int) ([]cdp.DebugTarget, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	endpoint := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/json/list"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %s", endpoint, resp.Status)
	}
	var targets []cdp.DebugTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("%s: failed to decode target list: %w", endpoint, err)
	}
	return targets, nil
}

// Resolve is a convenience wrapper using the default per-port timeout.
func Resolve(ctx context.Context, host string, ports []int) (cdp.DebugTarget, error) {
	return NewResolver(0).Resolve(ctx, host, ports)
}

// Target returns the target addressed directly by a websocket URL, bypassing
// discovery. The id is taken from the last path segment.
func Target(wsURL string) cdp.DebugTarget {
	id := wsURL
	if i := strings.LastIndex(wsURL, "/"); i >= 0 {
		id = wsURL[i+1:]
	}
	return cdp.DebugTarget{ID: id, SocketEndpoint: wsURL, Kind: "page"}
}

func describe(host string, ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return host + ":" + strings.Join(parts, ",")
}
