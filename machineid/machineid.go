// Package machineid derives the token a process writes into shared-tier
// directories to say "my local tier holds a fresh copy of this key".
//
// Detect reproduces the historical identity: the decimal sum of the four octets
// of the first IPv4 address found on the host. It is cheap and stable but not
// unique (10.0.0.255 and 10.0.1.254 both yield "265"); two processes sharing an
// id will trust each other's local copies. Hashed and Persistent are stronger
// alternatives for fleets where that matters.
package machineid

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ErrNoIPv4 means no network interface carries an IPv4 address.
var ErrNoIPv4 = errors.New("machineid: no IPv4 address found")

// Detect enumerates interfaces in system order and returns the octet sum of
// the first IPv4 address. Loopback is not skipped.
func Detect() (string, error) {
	addrs, err := interfaceAddrs()
	if err != nil {
		return "", err
	}
	return FromAddrs(addrs)
}

// MustDetect is Detect for package-level wiring. It panics on error.
func MustDetect() string {
	id, err := Detect()
	if err != nil {
		panic(err)
	}
	return id
}

// FromAddrs returns the octet sum of the first IPv4 address in addrs.
func FromAddrs(addrs []net.Addr) (string, error) {
	for _, a := range addrs {
		ip := addrIP(a)
		if ip4 := ip.To4(); ip4 != nil {
			return OctetSum(ip4), nil
		}
	}
	return "", ErrNoIPv4
}

// OctetSum renders the decimal sum of the four IPv4 octets.
func OctetSum(ip4 net.IP) string {
	sum := 0
	for _, b := range ip4.To4() {
		sum += int(b)
	}
	return strconv.Itoa(sum)
}

// Hashed returns a 16-hex-digit xxhash64 of the hostname plus every IPv4
// address on the host, sorted. Unlike Detect it distinguishes hosts whose
// first addresses happen to sum to the same number.
func Hashed() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("machineid: hostname: %w", err)
	}
	addrs, err := interfaceAddrs()
	if err != nil {
		return "", err
	}
	return hashOf(host, addrs)
}

func hashOf(host string, addrs []net.Addr) (string, error) {
	var ips []string
	for _, a := range addrs {
		if ip4 := addrIP(a).To4(); ip4 != nil {
			ips = append(ips, ip4.String())
		}
	}
	if len(ips) == 0 {
		return "", ErrNoIPv4
	}
	sort.Strings(ips)
	d := xxhash.New()
	_, _ = d.WriteString(host)
	for _, ip := range ips {
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(ip)
	}
	return fmt.Sprintf("%016x", d.Sum64()), nil
}

// Persistent returns the UUID stored at path, creating the file with a new
// random UUID on first use. The id survives restarts and address changes.
func Persistent(path string) (string, error) {
	if path == "" {
		return "", errors.New("machineid: empty path")
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		id, perr := uuid.Parse(strings.TrimSpace(string(b)))
		if perr != nil {
			return "", fmt.Errorf("machineid: %s: %w", path, perr)
		}
		return id.String(), nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("machineid: read %s: %w", path, err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("machineid: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		// lost a creation race; use the winner's id
		return Persistent(path)
	}
	if err != nil {
		return "", fmt.Errorf("machineid: create %s: %w", path, err)
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("machineid: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("machineid: write %s: %w", path, err)
	}
	return id, nil
}

func interfaceAddrs() ([]net.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("machineid: list interfaces: %w", err)
	}
	var out []net.Addr
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		out = append(out, addrs...)
	}
	return out, nil
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
