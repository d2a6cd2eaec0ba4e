package hgrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Izanagi078/Final-Work/internal/domain"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ===============================
// ERROR HANDLING
// ===============================

func handleUsecaseError(err error) error {
	if err == nil {
		return nil
	}

	logger := log.WithFields(log.Fields{
		"function":   "handleUsecaseError",
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
	})

	var elig *xerrors.EligibilityError

	switch {
	case errors.Is(err, xerrors.ErrNotFound):
		logger.WithField("grpc_code", codes.NotFound).Warn("resource not found")
		return status.Error(codes.NotFound, "account not found")

	case errors.As(err, &elig):
		logger.WithField("grpc_code", codes.FailedPrecondition).Info("loan declined")
		return status.Error(codes.FailedPrecondition, elig.Error())

	case errors.Is(err, xerrors.ErrInsufficientFunds):
		logger.WithField("grpc_code", codes.FailedPrecondition).Warn("insufficient balance for transaction")
		return status.Error(codes.FailedPrecondition, xerrors.ErrInsufficientFunds.Error())

	case errors.Is(err, xerrors.ErrInvalidAmount),
		errors.Is(err, xerrors.ErrInvalidRequest),
		errors.Is(err, xerrors.ErrSameAccount),
		errors.Is(err, xerrors.ErrBelowMinimum):
		logger.WithField("grpc_code", codes.InvalidArgument).Warn("invalid input provided")
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, xerrors.ErrUnauthorized):
		logger.WithField("grpc_code", codes.Unauthenticated).Warn("missing or invalid credentials")
		return status.Error(codes.Unauthenticated, "unauthenticated")

	case errors.Is(err, xerrors.ErrForbidden):
		logger.WithField("grpc_code", codes.PermissionDenied).Warn("token does not grant access to this account")
		return status.Error(codes.PermissionDenied, "permission denied")

	case errors.Is(err, xerrors.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		logger.WithField("grpc_code", codes.DeadlineExceeded).Error("request deadline exceeded")
		return status.Error(codes.DeadlineExceeded, "request timeout")

	case errors.Is(err, context.Canceled):
		logger.WithField("grpc_code", codes.Canceled).Info("request canceled by client")
		return status.Error(codes.Canceled, "request canceled")

	case errors.Is(err, xerrors.ErrStoreUnavailable):
		logger.WithField("grpc_code", codes.Unavailable).Error("ledger store unavailable")
		return status.Error(codes.Unavailable, "ledger temporarily unavailable")

	default:
		logger.WithFields(log.Fields{
			"grpc_code":    codes.Internal,
			"error_detail": fmt.Sprintf("%+v", err),
		}).Error("unhandled error - internal server error")
		return status.Error(codes.Internal, "internal server error")
	}
}

// ===============================
// REQUEST / REPLY CONVERSION
// ===============================

func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", xerrors.ErrInvalidRequest, name)
	}
	s := strings.TrimSpace(v.GetStringValue())
	if s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", xerrors.ErrInvalidRequest, name)
	}
	return s, nil
}

// amountField accepts the amount as a decimal string or a JSON number.
func amountField(req *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s is required", xerrors.ErrInvalidRequest, name)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s is not a number", xerrors.ErrInvalidRequest, name)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", xerrors.ErrInvalidRequest, name)
	}
}

func mutationFields(res *domain.MutationResult) map[string]any {
	m := map[string]any{
		"account_number": res.AccountNumber,
		"balance":        res.Balance.String(),
		"loan_amount":    res.LoanAmount.String(),
		"credit_score":   res.CreditScore,
	}
	if t := res.Transaction; t != nil {
		m["transaction"] = map[string]any{
			"id":          t.ID,
			"type":        string(t.Type),
			"amount":      t.Amount.String(),
			"description": t.Description,
			"timestamp":   t.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
	}
	return m
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode reply")
	}
	return s, nil
}
