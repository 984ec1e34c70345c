package runner

import (
	"fmt"
	"net"
)

// probeAddr is only used to pick the outgoing route, nothing is sent
const probeAddr = "8.8.8.8:80"

// DetectLocalIP returns the source address of the default route
func DetectLocalIP() (string, error) {
	conn, err := net.Dial("udp", probeAddr)
	if err != nil {
		return "", fmt.Errorf("failed to detect local ip: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("failed to detect local ip: unexpected address %s", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
