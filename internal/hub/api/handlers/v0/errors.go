package v0

import (
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/service"
)

// mapServiceError translates service sentinels onto HTTP problem responses.
// Anything unmapped is a 500 with the given fallback message.
func mapServiceError(err error, fallback string) error {
	var locked *service.DeploymentLockedError
	switch {
	case errors.Is(err, service.ErrDeploymentNotFound),
		errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, service.ErrNoActivationCode):
		return huma.Error404NotFound(err.Error())

	case errors.Is(err, service.ErrPermissionDenied):
		return huma.Error403Forbidden("Permission denied")

	case errors.Is(err, service.ErrDeploymentWrongState),
		errors.Is(err, service.ErrActiveDeploymentExists),
		errors.Is(err, service.ErrTemplateUnavailable),
		errors.Is(err, service.ErrLoseControl):
		return huma.Error409Conflict(err.Error())

	case errors.As(err, &locked):
		return huma.Error409Conflict(fmt.Sprintf("deployment is locked, retry after %d", locked.RetryAfter))

	case errors.Is(err, service.ErrDeploymentUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())

	case errors.Is(err, service.ErrInvalidTemplate),
		errors.Is(err, service.ErrInvalidConfig),
		errors.Is(err, service.ErrUnknownInstanceURL):
		return huma.Error400BadRequest(err.Error())

	case errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrInsufficientAllowance),
		errors.Is(err, service.ErrAllowanceExpiresTooEarly),
		errors.Is(err, service.ErrCertificateInvalid):
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error500InternalServerError(fallback, err)
}
