// Package discovery advertises a relay on the local network over mDNS and
// lets clients find one without a configured URL.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_phoneparty._tcp"
	Domain  = "local."
)

var ErrNotFound = errors.New("no relay found")

// Advertise registers the relay listening on port. The returned function
// withdraws the advertisement.
func Advertise(instance string, port int, path string) (func(), error) {
	server, err := zeroconf.Register(instance, Service, Domain, port, []string{"path=" + path}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	slog.Info("mdns service registered", "instance", instance, "service", Service, "port", port)
	return server.Shutdown, nil
}

// Lookup browses until the first relay answers or ctx is done, and returns
// its WebSocket base URL, e.g. ws://192.168.1.20:8080/party.
func Lookup(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("init mdns resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browse mdns: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ErrNotFound
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if url, ok := baseURL(entry); ok {
				slog.Info("mdns discovered relay", "instance", entry.Instance, "url", url)
				return url, nil
			}
		}
	}
}

func baseURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port == 0 {
		return "", false
	}

	var host net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0]
	default:
		return "", false
	}

	path := "/party"
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok && v != "" {
			path = v
		}
	}

	return "ws://" + net.JoinHostPort(host.String(), strconv.Itoa(entry.Port)) + path, true
}
