// Package netx holds network reachability helpers used by the connectivity
// monitor.
package netx

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

// HTTPProber checks reachability with a HEAD request. Any response below 500
// counts as reachable: the network path works even if the endpoint rejects us.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{URL: url, Client: &http.Client{}}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return err
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe failed: %s", resp.Status)
	}
	return nil
}

var listInterfaces = net.Interfaces

// HasActiveInterface reports whether any non-loopback interface is up. It is
// a cheap OS-level hint; the active probe remains authoritative.
func HasActiveInterface() bool {
	ifaces, err := listInterfaces()
	if err != nil {
		return false
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
