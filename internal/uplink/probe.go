package uplink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

// ProbePublicAddr queries STUN servers for a public mapped address. A
// successful binding doubles as the availability check for the backup
// wireless bearer: if no server answers, the uplink is treated as down.
// Note: the mapped address is for the STUN socket and may not match other
// sockets.
func ProbePublicAddr(ctx context.Context, servers []string, timeout time.Duration) (string, error) {
	if len(servers) == 0 {
		return "", fmt.Errorf("no STUN servers provided")
	}

	var lastErr error
	for _, server := range servers {
		addr, err := probeServer(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		return addr, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("STUN probe failed")
	}
	return "", lastErr
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, error) {
	client, err := dialSTUN(server)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type binding struct {
		addr string
		err  error
	}
	done := make(chan binding, 1)
	go func() {
		req := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
		var mapped stun.XORMappedAddress
		err := client.Do(req, func(ev stun.Event) {
			if ev.Error != nil {
				done <- binding{err: ev.Error}
				return
			}
			if err := mapped.GetFrom(ev.Message); err != nil {
				done <- binding{err: err}
				return
			}
			done <- binding{addr: mapped.String()}
		})
		if err != nil {
			done <- binding{err: err}
		}
	}()

	select {
	case b := <-done:
		return b.addr, b.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func dialSTUN(server string) (*stun.Client, error) {
	target := strings.TrimSpace(server)
	if target == "" {
		return nil, fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(target, "stun:") {
		target = "stun:" + target
	}
	uri, err := stun.ParseURI(target)
	if err != nil {
		return nil, err
	}
	return stun.DialURI(uri, &stun.DialConfig{})
}
