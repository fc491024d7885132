// Package beacon broadcasts device presence over UDP so the discovery
// app can find the device without polling. Fire-and-forget: no
// acknowledgement is expected and send failures never escalate.
package beacon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/touchstream/spoke/internal/device"
	"github.com/touchstream/spoke/internal/logging"
	"github.com/touchstream/spoke/internal/metrics"
)

// DefaultPort is the fixed discovery broadcast port.
const DefaultPort = 9999

// DefaultInterval is the fixed broadcast period.
const DefaultInterval = 5 * time.Second

// payload is the identity datagram listeners receive.
type payload struct {
	DeviceName string `json:"device_name"`
	DeviceID   string `json:"device_id"`
}

// Options configures a Beacon.
type Options struct {
	Store    *device.Store
	Interval time.Duration // default 5s
	Port     int           // default 9999
	// Addr is the destination address; default is the limited broadcast
	// address. Tests point it at loopback.
	Addr string
}

// Beacon periodically reads a configuration snapshot and broadcasts the
// device identity. It never blocks on acknowledgement and never touches
// the store or the supervisor beyond reading.
type Beacon struct {
	store    *device.Store
	interval time.Duration
	dst      *net.UDPAddr
	logger   *slog.Logger

	conn   net.PacketConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a beacon for the given store.
func New(opts *Options) *Beacon {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := opts.Addr
	if addr == "" {
		addr = "255.255.255.255"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Beacon{
		store:    opts.Store,
		interval: interval,
		dst:      &net.UDPAddr{IP: net.ParseIP(addr), Port: port},
		logger:   logging.GetLogger("beacon"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start opens the broadcast socket and begins the announce loop.
func (b *Beacon) Start() error {
	conn, err := broadcastSocket(b.ctx)
	if err != nil {
		return fmt.Errorf("failed to open beacon socket: %w", err)
	}
	b.conn = conn

	b.logger.Info("Discovery beacon started", "dst", b.dst.String(), "interval", b.interval)

	b.wg.Add(1)
	go b.loop()
	return nil
}

// Stop halts the announce loop and closes the socket.
func (b *Beacon) Stop() {
	b.cancel()
	b.wg.Wait()
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Beacon) loop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	// Announce immediately, then on every tick.
	b.announce()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.announce()
		}
	}
}

// announce reads a fresh snapshot and emits one identity datagram.
// Failures are dropped and retried on the next tick.
func (b *Beacon) announce() {
	cfg := b.store.Snapshot()

	data, err := json.Marshal(payload{
		DeviceName: cfg.DeviceName,
		DeviceID:   cfg.WireID(),
	})
	if err != nil {
		b.logger.Warn("Failed to encode beacon payload", "error", err)
		return
	}

	if _, err := b.conn.WriteTo(data, b.dst); err != nil {
		metrics.BeaconErrors.Inc()
		b.logger.Debug("Beacon send dropped", "error", err)
		return
	}
	metrics.BeaconSends.Inc()
}

// broadcastSocket opens a UDP socket with SO_BROADCAST set so datagrams
// can be sent to the limited broadcast address.
func broadcastSocket(ctx context.Context) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.ListenPacket(ctx, "udp4", ":0")
}
