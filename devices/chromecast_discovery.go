package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/hashicorp/mdns"
)

const (
	googlecastService = "_googlecast._tcp"
	googlecastDomain  = "local."

	// DefaultQueryTimeout is the mDNS query timeout per request
	DefaultQueryTimeout = 750 * time.Millisecond
	// Faster polling while cache is empty for quick first discovery
	pollIntervalFast = 1 * time.Second
	// Slower polling once at least one device is known to reduce network load
	pollIntervalSlow = 4 * time.Second
	// Interface refresh cadence for add/remove changes
	ifaceRefreshInterval = 20 * time.Second
	healthCheckInterval  = 5 * time.Second
)

// Browser selects the mDNS implementation used by the Scanner.
type Browser string

const (
	BrowserMDNS     Browser = "mdns"
	BrowserZeroconf Browser = "zeroconf"
)

// ErrNoMulticastInterface is returned by Start when no usable network
// interface can carry mDNS traffic.
var ErrNoMulticastInterface = errors.New("devices: no multicast capable IPv4 interface")

var (
	mdnsQuery         = mdns.Query
	newZeroconf       = func() (zeroconfResolver, error) { return zeroconf.NewResolver(nil) }
	activeInterfaces  = getActiveNetworkInterfaces
	hostPortIsAliveFn = HostPortIsAlive
)

type zeroconfResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Scanner continuously discovers Chromecast devices and keeps a cache of
// the ones that still answer on their control port.
type Scanner struct {
	Browser      Browser
	QueryTimeout time.Duration

	startOnce sync.Once
	startErr  error

	mu       sync.Mutex
	cache    map[string]Device // key: host:port
	onChange []func()
}

// NewScanner creates a scanner for the given browser backend.
func NewScanner(browser Browser, queryTimeout time.Duration) *Scanner {
	if browser == "" {
		browser = BrowserMDNS
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}

	return &Scanner{
		Browser:      browser,
		QueryTimeout: queryTimeout,
		cache:        make(map[string]Device),
	}
}

// OnChange registers fn to be called whenever the device set changes.
// fn runs on a scanner goroutine.
func (s *Scanner) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Start launches discovery and health checking until ctx is canceled.
// It is safe to call more than once; only the first call has an effect
// and later calls return its result.
func (s *Scanner) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		switch s.Browser {
		case BrowserZeroconf:
			resolver, err := newZeroconf()
			if err != nil {
				s.startErr = fmt.Errorf("zeroconf resolver: %w", err)
				return
			}
			go s.browseZeroconf(ctx, resolver)
		case BrowserMDNS:
			if len(activeInterfaces()) == 0 {
				s.startErr = ErrNoMulticastInterface
				return
			}
			s.warmup()
			go s.browseMDNS(ctx)
		default:
			s.startErr = fmt.Errorf("devices: unknown browser %q", s.Browser)
			return
		}

		go s.healthCheck(ctx)
	})

	return s.startErr
}

// Devices returns the current cached Chromecast devices sorted by name.
func (s *Scanner) Devices() []Device {
	s.mu.Lock()
	result := make([]Device, 0, len(s.cache))
	for _, d := range s.cache {
		result = append(result, d)
	}
	s.mu.Unlock()

	SortDevices(result)
	return result
}

func (s *Scanner) upsert(address string, dev Device) {
	s.mu.Lock()
	prev, ok := s.cache[address]
	s.cache[address] = dev
	changed := !ok || prev != dev
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

func (s *Scanner) notify() {
	s.mu.Lock()
	fns := make([]func(), len(s.onChange))
	copy(fns, s.onChange)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Scanner) upsertFromMDNSEntry(entry *mdns.ServiceEntry) {
	if entry == nil || entry.AddrV4 == nil {
		return
	}
	s.upsertRecord(entry.Name, entry.AddrV4, entry.Port, entry.InfoFields)
}

func (s *Scanner) upsertFromZeroconfEntry(entry *zeroconf.ServiceEntry) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return
	}
	s.upsertRecord(entry.Instance+"."+googlecastService, entry.AddrIPv4[0], entry.Port, entry.Text)
}

func (s *Scanner) upsertRecord(name string, ip net.IP, port int, txt []string) {
	address := fmt.Sprintf("%s:%d", ip, port)
	rec := parseTXT(txt)

	s.upsert(address, Device{
		Name:        rec.friendlyName(name),
		Addr:        "http://" + address,
		ID:          rec.ID,
		Model:       rec.Model,
		IsAudioOnly: rec.audioOnly(),
	})
}

func (s *Scanner) pollInterval() time.Duration {
	s.mu.Lock()
	hasDevices := len(s.cache) > 0
	s.mu.Unlock()
	if hasDevices {
		return pollIntervalSlow
	}
	return pollIntervalFast
}

func (s *Scanner) queryParams(entries chan *mdns.ServiceEntry, iface *net.Interface) *mdns.QueryParam {
	params := mdns.DefaultParams(googlecastService)
	params.Entries = entries
	params.Timeout = s.QueryTimeout
	params.DisableIPv6 = true
	params.WantUnicastResponse = true
	params.Logger = log.New(io.Discard, "", 0)
	if iface != nil {
		params.Interface = iface
	}
	return params
}

// warmup runs one query round on every interface so the first Devices()
// call after Start already sees the receivers that answer quickly.
func (s *Scanner) warmup() {
	interfaces := activeInterfaces()

	entriesCh := make(chan *mdns.ServiceEntry, 256)
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		for entry := range entriesCh {
			s.upsertFromMDNSEntry(entry)
		}
	}()

	var wg sync.WaitGroup
	for _, iface := range interfaces {
		wg.Add(1)
		go func(iface net.Interface) {
			defer wg.Done()
			_ = mdnsQuery(s.queryParams(entriesCh, &iface))
		}(iface)
	}
	wg.Wait()

	close(entriesCh)
	<-doneCh
}

// browseMDNS queries on all active network interfaces to handle systems
// with multiple adapters (VPN, Docker, etc.) where the OS default
// interface may not be the one connected to the Chromecast network.
func (s *Scanner) browseMDNS(ctx context.Context) {
	startPollingWorker := func(parent context.Context, iface *net.Interface) context.CancelFunc {
		entriesCh := make(chan *mdns.ServiceEntry, 256)
		workerCtx, cancel := context.WithCancel(parent)

		go func() {
			for {
				select {
				case <-workerCtx.Done():
					return
				case entry := <-entriesCh:
					s.upsertFromMDNSEntry(entry)
				}
			}
		}()

		go func() {
			pollTimer := time.NewTimer(0)
			defer pollTimer.Stop()

			for {
				select {
				case <-workerCtx.Done():
					return
				case <-pollTimer.C:
				}

				_ = mdnsQuery(s.queryParams(entriesCh, iface))
				pollTimer.Reset(s.pollInterval())
			}
		}()

		return cancel
	}

	workers := make(map[int]context.CancelFunc)
	refresh := func() {
		interfaces := activeInterfaces()

		active := make(map[int]struct{}, len(interfaces))
		for _, iface := range interfaces {
			active[iface.Index] = struct{}{}
			if _, ok := workers[iface.Index]; ok {
				continue
			}
			pollIface := iface
			workers[iface.Index] = startPollingWorker(ctx, &pollIface)
		}

		for idx, cancel := range workers {
			if _, ok := active[idx]; !ok {
				cancel()
				delete(workers, idx)
			}
		}
	}

	refresh()

	refreshTicker := time.NewTicker(ifaceRefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, cancel := range workers {
				cancel()
			}
			return
		case <-refreshTicker.C:
			refresh()
		}
	}
}

// browseZeroconf runs one zeroconf browse per poll interval. A resolver
// is single use, so every round after the first gets a fresh one.
func (s *Scanner) browseZeroconf(ctx context.Context, resolver zeroconfResolver) {
	for {
		if resolver != nil {
			s.browseZeroconfOnce(ctx, resolver)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		next, err := newZeroconf()
		if err != nil {
			resolver = nil
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollIntervalSlow):
			}
			continue
		}
		resolver = next
	}
}

func (s *Scanner) browseZeroconfOnce(ctx context.Context, resolver zeroconfResolver) {
	browseCtx, cancel := context.WithTimeout(ctx, s.pollInterval())
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	if err := resolver.Browse(browseCtx, googlecastService, googlecastDomain, entries); err != nil {
		<-browseCtx.Done()
		return
	}

	for {
		select {
		case <-browseCtx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				<-browseCtx.Done()
				return
			}
			s.upsertFromZeroconfEntry(entry)
		}
	}
}

// healthCheck periodically checks if cached Chromecast devices are still
// alive and removes stale devices from the cache.
func (s *Scanner) healthCheck(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictDead()
		}
	}
}

func (s *Scanner) evictDead() {
	s.mu.Lock()
	addresses := make([]string, 0, len(s.cache))
	for address := range s.cache {
		addresses = append(addresses, address)
	}
	s.mu.Unlock()

	var removed bool
	for _, address := range addresses {
		if hostPortIsAliveFn(address) {
			continue
		}
		s.mu.Lock()
		delete(s.cache, address)
		s.mu.Unlock()
		removed = true
	}

	if removed {
		s.notify()
	}
}

// getActiveNetworkInterfaces returns all network interfaces that are up,
// multicast-capable, not loopback, and have an IPv4 address.
func getActiveNetworkInterfaces() []net.Interface {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var active []net.Interface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				active = append(active, iface)
				break
			}
		}
	}

	return active
}

// HostPortIsAlive checks if a device at the given host:port is reachable
// via TCP connection. Returns true if the connection succeeds within 2 seconds.
func HostPortIsAlive(address string) bool {
	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
