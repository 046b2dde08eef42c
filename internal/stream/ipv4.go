package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// ErrInvalidIP is returned when a string is not a dotted-quad IPv4 address.
var ErrInvalidIP = errors.New("stream: invalid IPv4 address")

// ParseIPv4 parses a dotted-quad address into its 32-bit value, most
// significant octet first: "192.168.1.100" is 0xC0A80164.
func ParseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIP, s)
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// FormatIPv4 is the inverse of ParseIPv4.
func FormatIPv4(ip uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ip)
	return netip.AddrFrom4(b).String()
}

// IPKey returns the hashing key of an address: its 32-bit value in
// little-endian byte order. Two spellings of the same address always
// produce the same key.
func IPKey(ip uint32) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), ip)
}
