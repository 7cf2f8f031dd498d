// Package errortaxonomy classifies raw provider failures (HTTP status,
// network error, message signature) into the gateway's fixed taxonomy of
// types.ErrorKind values. Classification is deterministic: the same raw
// input always maps to the same kind, so classifying the same raw error
// twice yields equal error records.
package errortaxonomy

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/dreamscapes/gateway/types"
)

// Classify turns a raw error and (if available) an HTTP status code into a
// *types.Error with kind/severity/category/retryable filled in.
func Classify(err error, httpStatus int) *types.Error {
	kind, message := classifyKind(err, httpStatus)
	e := types.NewError(kind, message).WithHTTPStatus(httpStatus).WithCause(err)
	e.ID = uuid.NewString()
	return e
}

func classifyKind(err error, httpStatus int) (types.ErrorKind, string) {
	if err == nil && httpStatus == 0 {
		return types.ErrUnknown, "no error information available"
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.ErrTimeout, "request deadline exceeded"
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				return types.ErrTimeout, "network timeout: " + err.Error()
			}
			return types.ErrNetworkError, "network error: " + err.Error()
		}

		if kind, ok := classifyMessage(err.Error()); ok {
			return kind, err.Error()
		}
	}

	if kind, ok := classifyStatus(httpStatus); ok {
		msg := "upstream returned HTTP status"
		if err != nil {
			msg = err.Error()
		}
		return kind, msg
	}

	if err != nil {
		return types.ErrUnknown, err.Error()
	}
	return types.ErrUnknown, "unclassified failure"
}

// classifyStatus maps an HTTP status code to a kind, per the conventional
// meanings used by every provider adapter in this gateway.
func classifyStatus(status int) (types.ErrorKind, bool) {
	switch {
	case status == 0:
		return "", false
	case status == 401 || status == 403:
		return types.ErrAuthentication, true
	case status == 402 || status == 429:
		return types.ErrRateLimitExceeded, true
	case status == 404:
		return types.ErrModelUnavailable, true
	case status == 408:
		return types.ErrTimeout, true
	case status >= 400 && status < 500:
		return types.ErrClientError, true
	case status >= 500 && status < 600:
		return types.ErrServerError, true
	default:
		return "", false
	}
}

// classifyMessage applies message-signature matching for the errors that
// don't carry a clean HTTP status (SDK client errors, wrapped adapter
// errors, streaming failures).
func classifyMessage(msg string) (types.ErrorKind, bool) {
	lower := strings.ToLower(msg)

	signatures := []struct {
		substr string
		kind   types.ErrorKind
	}{
		{"rate limit", types.ErrRateLimitExceeded},
		{"rate_limit", types.ErrRateLimitExceeded},
		{"too many requests", types.ErrRateLimitExceeded},
		{"quota", types.ErrQuotaExceeded},
		{"insufficient_quota", types.ErrQuotaExceeded},
		{"unauthorized", types.ErrAuthentication},
		{"invalid api key", types.ErrAuthentication},
		{"authentication", types.ErrAuthentication},
		{"context deadline exceeded", types.ErrTimeout},
		{"timeout", types.ErrTimeout},
		{"content_filter", types.ErrContentFilter},
		{"content filtered", types.ErrContentFilter},
		{"safety", types.ErrContentFilter},
		{"circuit breaker", types.ErrCircuitBreakerOpen},
		{"model not found", types.ErrModelUnavailable},
		{"model_not_found", types.ErrModelUnavailable},
		{"model overloaded", types.ErrModelUnavailable},
		{"overloaded", types.ErrServiceDegraded},
		{"token limit", types.ErrTokenLimitExceeded},
		{"maximum context length", types.ErrTokenLimitExceeded},
		{"resource exhausted", types.ErrResourceExhausted},
		{"connection refused", types.ErrNetworkError},
		{"connection reset", types.ErrNetworkError},
		{"no such host", types.ErrNetworkError},
		{"invalid json", types.ErrParsingError},
		{"unexpected end of json", types.ErrParsingError},
		{"json: cannot unmarshal", types.ErrParsingError},
		{"promise", types.ErrAsyncExtraction},
		{"pending deferred", types.ErrAsyncExtraction},
		{"validation failed", types.ErrValidationFailed},
		{"invalid_request", types.ErrClientError},
		{"configuration", types.ErrConfigurationError},
	}

	for _, sig := range signatures {
		if strings.Contains(lower, sig.substr) {
			return sig.kind, true
		}
	}
	return "", false
}
