package forecast

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies workflow and query failures.
type Kind string

const (
	KindInvalidRequest     Kind = "InvalidRequest"
	KindInvalidCoordinates Kind = "InvalidCoordinates"
	KindLocationNotFound   Kind = "LocationNotFound"
	KindProviderError      Kind = "ProviderError"
	KindEmptyForecast      Kind = "EmptyForecast"
	KindStorageError       Kind = "StorageError"
)

// ErrLocationNotFound is returned by resolvers when a search has no results.
var ErrLocationNotFound = errors.New("location not found")

// Error is the caller-facing failure. Status is the HTTP status it maps to.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// UpstreamError is a non-2xx answer from an external provider.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

func invalidRequest(msg string, err error) *Error {
	return &Error{Kind: KindInvalidRequest, Status: http.StatusBadRequest, Message: msg, Err: err}
}

func invalidCoordinates(err error) *Error {
	return &Error{
		Kind:    KindInvalidCoordinates,
		Status:  http.StatusBadRequest,
		Message: "Latitude e Longitude inválidas após processamento.",
		Err:     err,
	}
}

func locationNotFound(city string) *Error {
	return &Error{
		Kind:    KindLocationNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Não foi possível encontrar coordenadas para a cidade: %s.", city),
		Err:     ErrLocationNotFound,
	}
}

func emptyForecast() *Error {
	return &Error{
		Kind:    KindEmptyForecast,
		Status:  http.StatusNotFound,
		Message: "Dados de previsão não encontrados para as coordenadas fornecidas.",
	}
}

// providerError carries the upstream status when the provider answered.
func providerError(msg string, err error) *Error {
	status := http.StatusInternalServerError
	details := err.Error()

	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.Status >= 400 {
			status = ue.Status
		}
		details = ue.Body
	}

	return &Error{Kind: KindProviderError, Status: status, Message: msg, Details: details, Err: err}
}

func storageError(msg string, err error) *Error {
	return &Error{
		Kind:    KindStorageError,
		Status:  http.StatusInternalServerError,
		Message: msg,
		Details: err.Error(),
		Err:     err,
	}
}
