package main

import (
	"net"

	"github.com/pion/mdns/v2"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// startMDNSServer answers mDNS queries for localName so LAN clients can find
// the API without configuration. IPv6 is optional.
func startMDNSServer(localName string, logger *zap.Logger) (*mdns.Conn, error) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, err
	}
	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return nil, err
	}

	var pc6 *ipv6.PacketConn
	if addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6); err == nil {
		if l6, err := net.ListenUDP("udp6", addr6); err == nil {
			pc6 = ipv6.NewPacketConn(l6)
		} else {
			logger.Warn("mDNS IPv6 listener unavailable", zap.Error(err))
		}
	}

	conn, err := mdns.Server(ipv4.NewPacketConn(l4), pc6, &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		return nil, err
	}
	logger.Info("mDNS responder started", zap.String("name", localName))
	return conn, nil
}
