package platform

import "net"

// OutboundIP returns the device's own IP address as seen on its default
// route. The dial never sends a packet (UDP connect only).
func OutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "unknown"
	}
	return addr.IP.String()
}
