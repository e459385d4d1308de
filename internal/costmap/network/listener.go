package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
	"github.com/banshee-data/costmap/internal/monitoring"
)

// DefaultPort is the UDP port the costmap bridge sends to.
const DefaultPort = 56301

// MaxDatagramSize bounds a single inbound datagram.
const MaxDatagramSize = 65507

// Sink accepts decoded messages. It must not block; pipeline.Dispatcher
// satisfies it.
type Sink interface {
	Enqueue(msg l1packets.Message) bool
}

// PacketStats receives datagram counters.
type PacketStats interface {
	AddPacket(bytes int)
	AddDropped()
	AddDecodeError()
	AddPoints(count int)
	LogStats()
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address       string // host:port; defaults to ":56301"
	RcvBuf        int    // socket receive buffer in bytes; zero leaves the OS default
	LogInterval   time.Duration
	Sink          Sink
	Stats         PacketStats
	SocketFactory UDPSocketFactory
}

// UDPListener reads type-tagged datagrams and hands decoded messages to a Sink.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	sink        Sink
	stats       PacketStats
	factory     UDPSocketFactory
}

// NewUDPListener creates a listener from cfg.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	l := &UDPListener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: cfg.LogInterval,
		sink:        cfg.Sink,
		stats:       cfg.Stats,
		factory:     cfg.SocketFactory,
	}
	if l.address == "" {
		l.address = fmt.Sprintf(":%d", DefaultPort)
	}
	if l.logInterval == 0 {
		l.logInterval = time.Minute
	}
	if l.stats == nil {
		l.stats = noopStats{}
	}
	if l.factory == nil {
		l.factory = RealUDPSocketFactory{}
	}
	return l
}

// noopStats is used when no stats collector is provided.
type noopStats struct{}

func (noopStats) AddPacket(int)   {}
func (noopStats) AddDropped()     {}
func (noopStats) AddDecodeError() {}
func (noopStats) AddPoints(int)   {}
func (noopStats) LogStats()       {}

// Start listens until ctx is cancelled. It returns ctx.Err() on cancellation
// and an error if the socket cannot be opened.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Warnf("failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	monitoring.Logf("UDP listener started on %s", conn.LocalAddr())

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.logStats(ctx)
	}()

	buf := make([]byte, MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping: %v", ctx.Err())
			return ctx.Err()
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			monitoring.Warnf("UDP read error: %v", err)
			continue
		}
		if err := l.HandleDatagram(buf[:n]); err != nil {
			monitoring.Warnf("dropping datagram from %v: %v", from, err)
		}
	}
}

// HandleDatagram decodes one datagram and forwards it to the sink. The
// datagram is only read during the call.
func (l *UDPListener) HandleDatagram(b []byte) error {
	l.stats.AddPacket(len(b))

	msg, err := l1packets.Decode(b)
	if err != nil {
		l.stats.AddDecodeError()
		return err
	}
	if m, ok := msg.(*l1packets.CustomMsg); ok {
		l.stats.AddPoints(len(m.Points))
	}
	if l.sink != nil && !l.sink.Enqueue(msg) {
		l.stats.AddDropped()
	}
	return nil
}

func (l *UDPListener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}
