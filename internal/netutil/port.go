// Package netutil picks a listen address for rendercheckd.
package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// SelectBindAddr returns preferred when it can be bound. Otherwise, when
// autoFallback is set (or no preferred address is given), it returns the
// first bindable candidate. Duplicate and empty candidates are skipped.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		ok, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	tried := []string{}
	if preferred != "" {
		tried = append(tried, preferred)
	}
	seen := map[string]bool{preferred: true}
	for _, addr := range candidates {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		tried = append(tried, addr)

		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			if preferred != "" {
				slog.Info("bind address fallback", "preferred", preferred, "selected", addr)
			}
			return addr, nil
		}
	}

	return "", fmt.Errorf("no available rendercheckd bind addresses (tried %s)", strings.Join(tried, ", "))
}

// IsAddrAvailable reports whether addr can be listened on right now. Only
// failing to release a successful listener is an error.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Debug("bind address unavailable", "addr", addr, "error", err)
		return false, nil
	}
	if err := ln.Close(); err != nil {
		return false, fmt.Errorf("release %s: %w", addr, err)
	}
	return true, nil
}
