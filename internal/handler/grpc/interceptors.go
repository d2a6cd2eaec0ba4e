package hgrpc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Izanagi078/Final-Work/pkg/jwtutil"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// LoggingInterceptor writes one structured line per call.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		entry := log.WithFields(log.Fields{
			"method":      info.FullMethod,
			"grpc_code":   status.Code(err).String(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			entry.WithField("error", err.Error()).Warn("grpc call failed")
		} else {
			entry.Info("grpc call")
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{"method": info.FullMethod, "panic": r}).Error("recovered from panic")
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// AuthInterceptor requires an "authorization: Bearer <jwt>" header whose
// account claim matches the request's account_number. Health and reflection
// calls pass through.
func AuthInterceptor(tokens *jwtutil.Manager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		var token string
		for _, v := range md.Get("authorization") {
			if strings.HasPrefix(v, "Bearer ") {
				token = strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
				break
			}
		}
		if token == "" {
			return nil, handleUsecaseError(xerrors.ErrUnauthorized)
		}
		claims, err := tokens.ParseAndValidate(token)
		if err != nil {
			return nil, handleUsecaseError(xerrors.ErrUnauthorized)
		}

		if s, ok := req.(*structpb.Struct); ok {
			if acc := s.GetFields()["account_number"].GetStringValue(); acc != "" && acc != claims.AccountNumber {
				return nil, handleUsecaseError(xerrors.ErrForbidden)
			}
		}
		return handler(ctx, req)
	}
}
