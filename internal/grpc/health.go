package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Pinger reports whether the store is reachable
type Pinger interface {
	Ping() error
}

// BrokerHealth reports whether the event publisher is connected
type BrokerHealth interface {
	IsHealthy() bool
}

const (
	// ServiceName reports whether the site can serve pages. It depends on
	// the store only.
	ServiceName = "atelier.Site"
	// NotificationsServiceName reports the inquiry notification broker.
	// Notifications are best effort, so it never affects ServiceName.
	NotificationsServiceName = "atelier.Notifications"
)

// HealthServer implements the gRPC health checking protocol
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	store  Pinger
	broker BrokerHealth
	log    *zap.Logger
}

// NewHealthServer creates a new health check server
func NewHealthServer(store Pinger, broker BrokerHealth, log *zap.Logger) *HealthServer {
	return &HealthServer{
		store:  store,
		broker: broker,
		log:    log,
	}
}

// Status reports the site status
func (h *HealthServer) Status() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if err := h.store.Ping(); err != nil {
		h.log.Error("Store health check failed", zap.Error(err))
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// NotificationsStatus reports the broker status
func (h *HealthServer) NotificationsStatus() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if !h.broker.IsHealthy() {
		h.log.Warn("RabbitMQ health check failed, inquiry notifications degraded")
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// statusOf maps a requested service name to its check. The empty name is
// the site.
func (h *HealthServer) statusOf(service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, bool) {
	switch service {
	case "", ServiceName:
		return h.Status(), true
	case NotificationsServiceName:
		return h.NotificationsStatus(), true
	default:
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN, false
	}
}

// Check implements the health check. Unknown services are NotFound as the
// protocol requires.
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	current, ok := h.statusOf(req.GetService())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	return &grpc_health_v1.HealthCheckResponse{Status: current}, nil
}

// Watch sends the current status, then a new message whenever it changes,
// until the client goes away.
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	last, ok := h.statusOf(req.GetService())
	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: last}); err != nil || !ok {
		return err
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-ticker.C:
			current, _ := h.statusOf(req.GetService())
			if current == last {
				continue
			}
			last = current
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
		}
	}
}

// NewServer builds the gRPC server with the health service and reflection
func NewServer(health *HealthServer, log *zap.Logger) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(log)))
	grpc_health_v1.RegisterHealthServer(s, health)
	reflection.Register(s)
	return s
}

// LoggingInterceptor logs all gRPC requests
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if err != nil {
			log.Error("gRPC request failed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		} else {
			log.Debug("gRPC request completed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
			)
		}

		return resp, err
	}
}
