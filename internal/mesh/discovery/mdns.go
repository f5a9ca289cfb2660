// Package discovery implements the two peer-discovery mechanisms of spec
// §4.G: mDNS on the local network segment, and relay-assisted discovery
// through named "rooms" on a well-known relay.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceName is the mDNS service type this node advertises and browses
// for.
const ServiceName = "_agentcore-mesh._tcp"

// PeerRecord is one mDNS-discovered peer address.
type PeerRecord struct {
	PeerID  string
	Host    string
	Port    int
	Address string
}

// Advertise registers an mDNS service record for this node, advertising
// peerID (as the service's TXT record) on port. The caller is responsible
// for calling Shutdown on the returned server when the node stops.
func Advertise(peerID, hostName string, port int) (*mdns.Server, error) {
	info := []string{fmt.Sprintf("peer_id=%s", peerID)}
	service, err := mdns.NewMDNSService(peerID, ServiceName, "", hostName, port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("discovery: build mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: start mdns server: %w", err)
	}
	return server, nil
}

// Lookup browses the local segment for ServiceName records for up to
// timeout, returning every peer found. ctx is honored on a best-effort
// basis: the underlying query always runs to its own timeout, but a
// cancelled ctx is reported as the returned error once it does.
func Lookup(ctx context.Context, timeout time.Duration) ([]PeerRecord, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var found []PeerRecord
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for e := range entries {
			found = append(found, PeerRecord{
				PeerID:  extractPeerID(e.InfoFields),
				Host:    e.Host,
				Port:    e.Port,
				Address: net.JoinHostPort(e.Host, fmt.Sprint(e.Port)),
			})
		}
	}()

	// mdns.Query returns once its timeout elapses but leaves entries open;
	// closing it here ends the collector goroutine's range loop.
	err := mdns.Query(&mdns.QueryParam{Service: ServiceName, Timeout: timeout, Entries: entries})
	close(entries)
	<-collected
	if err != nil {
		return nil, fmt.Errorf("discovery: mdns query: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return found, ctxErr
	}
	return found, nil
}

func extractPeerID(infoFields []string) string {
	const prefix = "peer_id="
	for _, f := range infoFields {
		if len(f) > len(prefix) && f[:len(prefix)] == prefix {
			return f[len(prefix):]
		}
	}
	return ""
}
