package hrest

import (
	"errors"
	"net/http"

	"github.com/Izanagi078/Final-Work/pkg/response"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

// statusFor maps a usecase error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var elig *xerrors.EligibilityError

	switch {
	case errors.As(err, &elig):
		return http.StatusUnprocessableEntity, elig.Error()

	case errors.Is(err, xerrors.ErrInvalidAmount),
		errors.Is(err, xerrors.ErrSameAccount),
		errors.Is(err, xerrors.ErrBelowMinimum),
		errors.Is(err, xerrors.ErrInvalidRequest),
		errors.Is(err, xerrors.ErrInvalidEmailFormat),
		errors.Is(err, xerrors.ErrInvalidMobile),
		errors.Is(err, xerrors.ErrInvalidNationalID),
		errors.Is(err, xerrors.ErrWeakPassword):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, xerrors.ErrInsufficientFunds):
		return http.StatusConflict, xerrors.ErrInsufficientFunds.Error()

	case errors.Is(err, xerrors.ErrAccountExists):
		return http.StatusConflict, xerrors.ErrAccountExists.Error()

	case errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound, "account not found"

	case errors.Is(err, xerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, xerrors.ErrInvalidCredentials.Error()

	case errors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusUnauthorized, xerrors.ErrUnauthorized.Error()

	case errors.Is(err, xerrors.ErrForbidden):
		return http.StatusForbidden, xerrors.ErrForbidden.Error()

	case errors.Is(err, xerrors.ErrTimeout):
		return http.StatusGatewayTimeout, xerrors.ErrTimeout.Error()

	case errors.Is(err, xerrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "ledger temporarily unavailable"

	default:
		return http.StatusInternalServerError, xerrors.ErrInternalServer.Error()
	}
}

func (h *LedgerRestHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	response.Error(w, status, msg)
}
