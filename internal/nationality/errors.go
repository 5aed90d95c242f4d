package nationality

import "fmt"

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError is returned when the predictor has no candidates for a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "No nationality data found for name: " + e.Name
}

// CountryNotFoundError is returned when a popular-names query names an
// unknown country code.
type CountryNotFoundError struct {
	Code string
}

func (e *CountryNotFoundError) Error() string {
	return fmt.Sprintf("No country found with code '%s'.", e.Code)
}

// NoDataError is returned when a known country has no linked names.
type NoDataError struct {
	Code string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("No data found for country '%s'.", e.Code)
}

// UpstreamError wraps a failed call to an external service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }
