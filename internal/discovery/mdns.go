// Package discovery advertises the coordinator on the local network so
// worker nodes can find it without manual configuration.
package discovery

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/hashicorp/mdns"
)

const (
	serviceName = "_iris-coordinator._tcp"
	domain      = "local."
)

// Advertiser advertises the coordinator over mDNS and can be shut down.
type Advertiser struct {
	server *mdns.Server
}

// Start advertises the coordinator on the given port. It does not
// consult the mDNS toggle; the caller decides whether to call it. On
// error it returns a nil Advertiser, whose Stop is a no-op.
func Start(port int) (*Advertiser, error) {
	hostname, _ := os.Hostname()
	ips := outboundIPs()
	log.Printf("[Discovery] advertising %s on port %d (ips: %v)", serviceName, port, ips)

	info := []string{fmt.Sprintf("iris coordinator on %s", hostname)}
	service, err := mdns.NewMDNSService(hostname, serviceName, domain, "", port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("mdns service creation failed: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns server start failed: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Stop withdraws the advertisement. Safe to call on a nil Advertiser.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	log.Println("[Discovery] stopping mDNS advertisement")
	a.server.Shutdown()
}

func outboundIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var out []net.IP
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.To4() == nil {
			continue
		}
		out = append(out, ip)
	}
	return out
}
