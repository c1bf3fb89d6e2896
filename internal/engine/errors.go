package engine

import (
	"fmt"
	"net/http"
)

// FailureKind classifies generation failures. Every kind maps to a distinct,
// actionable user-facing message and an HTTP-equivalent status. All kinds are
// session-local and recoverable: the user may retry or reconfigure.
type FailureKind string

const (
	// FailureMissingCredential: no API key configured; detected pre-flight,
	// no call is attempted.
	FailureMissingCredential FailureKind = "missing_credential"
	// FailureConnectionFailed: the endpoint could not be reached.
	FailureConnectionFailed FailureKind = "connection_failed"
	// FailureAuthFailed: the provider rejected the credential.
	FailureAuthFailed FailureKind = "auth_failed"
	// FailureModelNotFound: the requested model id does not exist on the
	// provider, or the base URL path is wrong.
	FailureModelNotFound FailureKind = "model_not_found"
	// FailureUnknown: anything else the provider reported.
	FailureUnknown FailureKind = "unknown"
)

// Failure is the engine's error type. Endpoint and Model carry the values
// the user-facing message embeds.
type Failure struct {
	Kind     FailureKind
	Endpoint string
	Model    string
	Detail   string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("engine: %s: %s", f.Kind, f.UserMessage())
}

// UserMessage returns the message shown to the user.
func (f *Failure) UserMessage() string {
	switch f.Kind {
	case FailureMissingCredential:
		return "Configuration Error: Missing API Key. Please configure it in Settings."
	case FailureConnectionFailed:
		return fmt.Sprintf("Connection Failed: Could not reach %s. Please check your Base URL settings.", f.Endpoint)
	case FailureAuthFailed:
		return fmt.Sprintf("Authentication Failed: Invalid API Key for %s.", f.Endpoint)
	case FailureModelNotFound:
		return fmt.Sprintf("Model Not Found: The model '%s' does not exist on this provider, or the Base URL path is incorrect.", f.Model)
	default:
		return fmt.Sprintf("AI Error: %s", f.Detail)
	}
}

// HTTPStatus returns the HTTP-equivalent status for the failure kind.
func (f *Failure) HTTPStatus() int {
	switch f.Kind {
	case FailureMissingCredential, FailureAuthFailed:
		return http.StatusUnauthorized
	case FailureConnectionFailed:
		return http.StatusGatewayTimeout
	case FailureModelNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
