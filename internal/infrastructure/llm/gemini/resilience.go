package gemini

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

func classifyAnalysisError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var analysisErr *domain.AnalysisError
	if errors.As(err, &analysisErr) {
		switch {
		case analysisErr.Timeout():
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case analysisErr.StatusCode == 0:
			// Malformed or empty body from a 2xx response.
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		case isRetryableHTTPStatus(analysisErr.StatusCode):
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true, RetryAfter: analysisErr.RetryAfter}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		// No call was made; report it as this file's analysis failure.
		return &domain.AnalysisError{
			Status: domain.AnalysisStatusCircuitOpen,
			Err:    domain.WrapError(domain.ErrTemporary, operation, err),
		}
	}
	var analysisErr *domain.AnalysisError
	if errors.As(err, &analysisErr) {
		// The typed error already carries the text shown to the user.
		return err
	}
	if classifyAnalysisError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
