package httpadapter

import (
	"net/http"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrBuildNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrBuildInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrCorpusEmpty):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrOracleFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
