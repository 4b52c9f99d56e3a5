package server

import (
	"net"
	"net/netip"
	"strings"

	"github.com/pkg/errors"
)

// prefixSet holds single addresses as full-length prefixes next to configured CIDRs
type prefixSet []netip.Prefix

func parsePrefixSet(filters []string) (prefixSet, error) {
	var set prefixSet
	for _, filter := range filters {
		filter = strings.TrimSpace(filter)
		if filter == "" {
			continue
		}
		if strings.Contains(filter, "/") {
			prefix, err := netip.ParsePrefix(filter)
			if err != nil {
				return nil, err
			}
			set = append(set, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(filter)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		set = append(set, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return set, nil
}

func (s prefixSet) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range s {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientFilter decides which servers may open a link, by remote IP address.
// An allow list, when given, takes precedence over the deny list.
type ClientFilter struct {
	allow prefixSet
	deny  prefixSet
}

func NewClientFilterAllowAll() *ClientFilter {
	return &ClientFilter{}
}

func NewClientFilter(allows []string, denies []string) (*ClientFilter, error) {
	allow, err := parsePrefixSet(allows)
	if err != nil {
		return nil, errors.Wrap(err, "invalid allow filter")
	}
	deny, err := parsePrefixSet(denies)
	if err != nil {
		return nil, errors.Wrap(err, "invalid deny filter")
	}
	return &ClientFilter{
		allow: allow,
		deny:  deny,
	}, nil
}

func (f *ClientFilter) Allow(addr netip.Addr) bool {
	if len(f.allow) > 0 {
		return f.allow.contains(addr)
	}
	if len(f.deny) > 0 {
		return !f.deny.contains(addr)
	}
	return true
}

// AllowAddr evaluates a socket address. Addresses that are not TCP/IP, such as pipes,
// are only allowed when no filtering is configured.
func (f *ClientFilter) AllowAddr(addr net.Addr) bool {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return f.Allow(tcpAddr.AddrPort().Addr())
	}
	if addrPort, err := netip.ParseAddrPort(addr.String()); err == nil {
		return f.Allow(addrPort.Addr())
	}
	return len(f.allow) == 0 && len(f.deny) == 0
}
