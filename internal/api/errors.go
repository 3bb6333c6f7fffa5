package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/banshee-data/teds/internal/acquire"
	"github.com/banshee-data/teds/internal/channel"
	"github.com/banshee-data/teds/internal/db"
	"github.com/banshee-data/teds/internal/httputil"
	"github.com/banshee-data/teds/internal/monitoring"
	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/units"
)

var codecErrors = []error{
	teds.ErrInvalidPreamble,
	teds.ErrOutOfRange,
	teds.ErrUnsupportedTemplate,
	teds.ErrUnsupportedBranch,
	teds.ErrInvalidTemplate,
	teds.ErrValueOutOfRange,
	teds.ErrUnsetField,
	teds.ErrUnsupportedKind,
	teds.ErrWrongType,
	teds.ErrUnknownField,
	channel.ErrInvalidDirection,
}

var deviceErrors = []error{
	acquire.ErrDevice,
	acquire.ErrNoTEDS,
	acquire.ErrBadWords,
	acquire.ErrClosed,
}

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, units.ErrUnknownUnit):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrSensorNotFound):
		return http.StatusNotFound
	case errors.Is(err, acquire.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	for _, target := range codecErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	for _, target := range deviceErrors {
		if errors.Is(err, target) {
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		monitoring.Logf("api: %v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}
