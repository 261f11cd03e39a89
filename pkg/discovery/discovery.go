// Package discovery announces a gamepi station on the local network with
// mDNS/DNS-SD and finds other stations the same way.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the DNS-SD service type stations register under.
	ServiceType = "_gamepi._tcp"
	// Domain is the mDNS browse domain.
	Domain = "local."

	// DefaultBrowseTimeout bounds Browse when the caller passes zero.
	DefaultBrowseTimeout = 3 * time.Second
)

// ErrInvalidPort is returned when Advertise is given a port outside 1-65535.
var ErrInvalidPort = errors.New("discovery: invalid port")

// Station is a gamepi server found on the network.
type Station struct {
	Instance string   `json:"instance"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Addrs    []string `json:"addrs"`
	Version  string   `json:"version,omitempty"`
	Serial   string   `json:"serial_port,omitempty"`
}

// URL returns the base URL of the station's web page, preferring the
// first IPv4 address over the advertised host name.
func (s Station) URL() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addrs) > 0 {
		host = s.Addrs[0]
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// Options configures an announcement.
type Options struct {
	// Instance is the human-readable station name; defaults to the host name.
	Instance string
	Port     int
	// Text is published as TXT records ("key=value").
	Text []string
}

// Advertiser keeps a registration alive until Shutdown.
type Advertiser struct {
	server   *zeroconf.Server
	instance string
	logger   *slog.Logger
}

// Advertise registers the station on all multicast-capable interfaces.
func Advertise(opts Options, logger *slog.Logger) (*Advertiser, error) {
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, opts.Port)
	}
	if logger == nil {
		logger = slog.Default()
	}

	instance := InstanceName(opts.Instance)
	server, err := zeroconf.Register(instance, ServiceType, Domain, opts.Port, opts.Text, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}

	logger.Info("mdns advertising", "instance", instance, "service", ServiceType, "port", opts.Port)
	return &Advertiser{server: server, instance: instance, logger: logger}, nil
}

// Instance returns the registered instance name.
func (a *Advertiser) Instance() string {
	return a.instance
}

// Shutdown withdraws the registration.
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.logger.Debug("mdns advertisement withdrawn", "instance", a.instance)
}

// InstanceName returns name, or "gamepi on <hostname>" when name is empty.
func InstanceName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "gamepi"
	}
	return "gamepi on " + strings.SplitN(host, ".", 2)[0]
}

// Browse collects stations answering within timeout. Duplicate answers for
// the same instance are merged. Results are sorted by instance name.
func Browse(ctx context.Context, timeout time.Duration) ([]Station, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	found := make(map[string]Station)
	for {
		select {
		case <-ctx.Done():
			return collect(found), nil
		case e, ok := <-entries:
			if !ok {
				return collect(found), nil
			}
			if e == nil {
				continue
			}
			st := FromEntry(e)
			if prev, ok := found[st.Instance]; ok {
				st.Addrs = mergeAddrs(prev.Addrs, st.Addrs)
			}
			found[st.Instance] = st
		}
	}
}

// FromEntry converts a resolved DNS-SD entry into a Station.
func FromEntry(e *zeroconf.ServiceEntry) Station {
	st := Station{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
	}
	for _, ip := range e.AddrIPv4 {
		st.Addrs = append(st.Addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		st.Addrs = append(st.Addrs, ip.String())
	}
	txt := ParseText(e.Text)
	st.Version = txt["version"]
	st.Serial = txt["serial_port"]
	return st
}

// ParseText splits "key=value" TXT records into a map. Records without
// '=' are kept as keys with empty values.
func ParseText(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func mergeAddrs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, addr := range append(append([]string{}, a...), b...) {
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

func collect(found map[string]Station) []Station {
	stations := make([]Station, 0, len(found))
	for _, st := range found {
		stations = append(stations, st)
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].Instance < stations[j].Instance
	})
	return stations
}
