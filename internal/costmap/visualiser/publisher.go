// Package visualiser streams published occupancy grids to gRPC clients.
package visualiser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/costmap/internal/costmap/l3grid"
	"github.com/banshee-data/costmap/internal/monitoring"
)

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the number of frames buffered per client before
	// frames are dropped for that client.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   5,
		ClientBuffer: 8,
	}
}

type frame struct {
	topic   string
	payload []byte
}

type clientStream struct {
	id     string
	topic  string
	frames chan frame
}

// Publisher serves CostmapService and fans published grids out to
// streaming clients. It implements pipeline.Publisher.
type Publisher struct {
	config Config
	server *grpc.Server

	mu      sync.RWMutex
	clients map[string]*clientStream
	latest  map[string][]byte

	nextID    atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
	running   atomic.Bool
	wg        sync.WaitGroup
}

// NewPublisher creates a Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:  cfg,
		clients: make(map[string]*clientStream),
		latest:  make(map[string][]byte),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves on lis in the background until Stop.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("publisher already running")
	}

	// Large global grids exceed the 4 MB default.
	const maxMsgSize = 16 * 1024 * 1024
	p.server = grpc.NewServer(grpc.MaxSendMsgSize(maxMsgSize))
	RegisterCostmapServiceServer(p.server, p)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[Visualiser] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Errorf("[Visualiser] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every client stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.mu.Lock()
	for id, c := range p.clients {
		close(c.frames)
		delete(p.clients, id)
	}
	p.mu.Unlock()

	p.server.GracefulStop()
	p.wg.Wait()
	monitoring.Logf("[Visualiser] gRPC server stopped")
}

// PublishGrid encodes grid once and queues it for every subscribed client.
// Slow clients lose frames rather than blocking the caller.
func (p *Publisher) PublishGrid(topic string, grid *l3grid.OccupancyGrid) {
	payload := EncodeFrame(topic, grid)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest[topic] = payload
	p.published.Add(1)

	for _, c := range p.clients {
		if c.topic != "" && c.topic != topic {
			continue
		}
		select {
		case c.frames <- frame{topic: topic, payload: payload}:
		default:
			p.dropped.Add(1)
		}
	}
}

// Stats reports published frames, dropped client frames and connected clients.
func (p *Publisher) Stats() (published, dropped uint64, clients int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published.Load(), p.dropped.Load(), len(p.clients)
}

// LatestGrid implements CostmapServiceServer.
func (p *Publisher) LatestGrid(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	p.mu.RLock()
	payload, ok := p.latest[req.GetValue()]
	p.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no grid published on %q", req.GetValue())
	}
	return wrapperspb.Bytes(payload), nil
}

// StreamGrids implements CostmapServiceServer.
func (p *Publisher) StreamGrids(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	c, err := p.addClient(req.GetValue())
	if err != nil {
		return err
	}
	defer p.removeClient(c.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-c.frames:
			if !ok {
				return nil
			}
			if err := stream.Send(wrapperspb.Bytes(f.payload)); err != nil {
				return err
			}
		}
	}
}

func (p *Publisher) addClient(topic string) (*clientStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return nil, status.Error(codes.Unavailable, "publisher stopped")
	}
	if len(p.clients) >= p.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "client limit %d reached", p.config.MaxClients)
	}
	c := &clientStream{
		id:     strconv.FormatUint(p.nextID.Add(1), 10),
		topic:  topic,
		frames: make(chan frame, p.config.ClientBuffer),
	}
	p.clients[c.id] = c
	monitoring.Logf("[Visualiser] Client connected: %s topic=%q (total: %d)", c.id, topic, len(p.clients))
	return c, nil
}

func (p *Publisher) removeClient(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[id]; ok {
		close(c.frames)
		delete(p.clients, id)
		monitoring.Logf("[Visualiser] Client disconnected: %s (remaining: %d)", id, len(p.clients))
	}
}
