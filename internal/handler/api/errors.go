package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"SolSignal/internal/domain/models"
	"SolSignal/internal/usecase"
	xhttp "SolSignal/pkg/http"
)

// appError maps domain errors to HTTP-aware ones. Unknown errors map to nil
// and fall through as 500s.
func appError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrMalformedSeries):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrModelNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, usecase.ErrTrainingBusy):
		return xhttp.NewAppError("ERR_TRAINING_BUSY", err.Error(), http.StatusConflict)
	case errors.Is(err, usecase.ErrHistoryDisabled):
		return xhttp.NewAppError("ERR_HISTORY_DISABLED", err.Error(), http.StatusNotImplemented)
	case errors.Is(err, models.ErrCorruptModelBundle):
		return xhttp.InternalError(err.Error())
	}
	return nil
}

func respondError(c echo.Context, err error) error {
	if ae := appError(err); ae != nil {
		return xhttp.AppErrorResponse(c, ae)
	}
	return xhttp.AppErrorResponse(c, err)
}

func rateLimited(c echo.Context) error {
	return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
}
