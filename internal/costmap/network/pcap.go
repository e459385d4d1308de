package network

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/costmap/internal/monitoring"
)

// pcapngMagic is the section header block type that opens a pcapng file.
const pcapngMagic = 0x0A0D0D0A

// ReplayConfig configures ReplayPCAP.
type ReplayConfig struct {
	// Port selects UDP datagrams by destination port; zero accepts any port.
	Port int
	// Speed scales the gaps between capture timestamps. Zero replays as
	// fast as possible; 1 replays in real time.
	Speed float64
}

// ReplayStats summarises one replay.
type ReplayStats struct {
	Packets   int // capture records read
	Datagrams int // UDP payloads handed to the listener
	Errors    int // payloads that failed to decode
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// openCapture accepts both classic pcap and pcapng input.
func openCapture(r io.Reader) (packetSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// ReplayPCAP feeds the UDP payloads of a capture through l.HandleDatagram.
// It returns when the capture ends or ctx is cancelled.
func ReplayPCAP(ctx context.Context, r io.Reader, l *UDPListener, cfg ReplayConfig) (ReplayStats, error) {
	var stats ReplayStats

	src, err := openCapture(r)
	if err != nil {
		return stats, fmt.Errorf("failed to open capture: %w", err)
	}
	decodeOpts := gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	start := time.Now()
	var started bool
	var prev time.Time
	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("PCAP replay stopping after %d packets: %v", stats.Packets, err)
			return stats, err
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("PCAP replay complete: %d packets, %d datagrams in %v",
				stats.Packets, stats.Datagrams, time.Since(start).Round(time.Millisecond))
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		pkt := gopacket.NewPacket(data, src.LinkType(), decodeOpts)
		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if cfg.Port != 0 && int(udp.DstPort) != cfg.Port {
			continue
		}

		if cfg.Speed > 0 {
			if !started {
				started = true
			} else if gap := ci.Timestamp.Sub(prev); gap > 0 {
				if err := sleepCtx(ctx, time.Duration(float64(gap)/cfg.Speed)); err != nil {
					return stats, err
				}
			}
			prev = ci.Timestamp
		}

		stats.Datagrams++
		if err := l.HandleDatagram(udp.Payload); err != nil {
			stats.Errors++
			monitoring.Debugf("PCAP packet %d: %v", stats.Packets, err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
