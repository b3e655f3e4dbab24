package services

import (
	"context"
	"time"

	"cdr.dev/slog"
	"github.com/coder/quartz"
	"golang.org/x/xerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// HealthServiceName is the grpc.health.v1 service name reported for the
// session store.
const HealthServiceName = "focus.SessionStore"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService publishes grpc.health.v1 status. The serving status follows
// a periodic store ping.
type HealthService struct {
	log      slog.Logger
	pinger   Pinger
	clock    quartz.Clock
	interval time.Duration
	server   *health.Server
}

func NewHealthService(log slog.Logger, pinger Pinger, clock quartz.Clock, interval time.Duration) *HealthService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthService{
		log:      log.Named("health"),
		pinger:   pinger,
		clock:    clock,
		interval: interval,
		server:   health.NewServer(),
	}
}

func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Run checks the store now and then on every interval until ctx is done.
func (h *HealthService) Run(ctx context.Context) error {
	h.check(ctx)
	w := h.clock.TickerFunc(ctx, h.interval, func() error {
		h.check(ctx)
		return nil
	}, "health")
	err := w.Wait()
	if xerrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Check runs a single store ping and updates the published status.
func (h *HealthService) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	return h.check(ctx)
}

func (h *HealthService) check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.log.Warn(ctx, "store ping failed", slog.Error(err))
		}
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(HealthServiceName, status)
	return status
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthService) Shutdown() {
	h.server.Shutdown()
}

// HealthClient checks a remote server's grpc.health.v1 endpoint.
type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
	target string
}

func NewHealthClient(target string, opts ...grpc.DialOption) (*HealthClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, xerrors.Errorf("could not create grpc client for %s: %w", target, err)
	}
	return &HealthClient{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
		target: target,
	}, nil
}

// Status returns the serving status of service ("" for the whole server).
func (hc *HealthClient) Status(ctx context.Context, service string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := hc.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", xerrors.Errorf("health check %s: %w", hc.target, err)
	}
	return resp.GetStatus().String(), nil
}

func (hc *HealthClient) Close() error {
	if hc.conn != nil {
		return hc.conn.Close()
	}
	return nil
}
