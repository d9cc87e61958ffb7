package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies exchange failures by how callers should react.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindClockSkew
	KindRateLimited
	KindValidation
	KindAuth
	KindInsufficientBalance
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindClockSkew:
		return "clock_skew"
	case KindRateLimited:
		return "rate_limited"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "authorization"
	case KindInsufficientBalance:
		return "insufficient_balance"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindClockSkew || k == KindRateLimited
}

// APIError is a classified non-2xx exchange response.
type APIError struct {
	Kind       ErrorKind
	Status     int
	Code       int
	Message    string
	Method     string
	Endpoint   string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s status %d code %d (%s): %s", e.Method, e.Endpoint, e.Status, e.Code, e.Kind, e.Message)
}

// Binance error codes that carry a classification on their own.
const (
	codeTimestamp        = -1021
	codeBadSignature     = -1022
	codeInvalidSymbol    = -1121
	codeBadPrecision     = -1111
	codeFilterFailure    = -1013
	codeRejectedMBX      = -2010
	codeInvalidAPIKey    = -2014
	codeUnauthorized     = -2015
	codeMarginShortage   = -2019
	codeWouldTrigger     = -2021
	codeMinNotional      = -4164
	codeTooManyRequests  = -1003
	codeBalanceNotEnough = -2018
	codeReduceOnlyReject = -2022
)

// ClassifyResponse builds an APIError from a failed HTTP response.
func ClassifyResponse(method, endpoint string, status int, header http.Header, body []byte) *APIError {
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Msg == "" {
		payload.Msg = strings.TrimSpace(string(body))
	}
	e := &APIError{
		Status:   status,
		Code:     payload.Code,
		Message:  payload.Msg,
		Method:   method,
		Endpoint: endpoint,
	}
	e.Kind = classify(status, payload.Code, payload.Msg)
	if e.Kind == KindRateLimited {
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return e
}

func classify(status, code int, msg string) ErrorKind {
	if IsClockSkewMessage(msg) || code == codeTimestamp {
		return KindClockSkew
	}
	switch code {
	case codeTooManyRequests:
		return KindRateLimited
	case codeBadSignature, codeInvalidAPIKey, codeUnauthorized:
		return KindAuth
	case codeMarginShortage, codeBalanceNotEnough:
		return KindInsufficientBalance
	case codeInvalidSymbol, codeBadPrecision, codeFilterFailure, codeMinNotional, codeWouldTrigger, codeReduceOnlyReject:
		return KindValidation
	case codeRejectedMBX:
		if strings.Contains(strings.ToLower(msg), "insufficient balance") {
			return KindInsufficientBalance
		}
		return KindValidation
	}
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindNetwork
	case status >= 400:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "insufficient") {
			return KindInsufficientBalance
		}
		return KindValidation
	}
	return KindUnknown
}

// IsClockSkewMessage matches exchange messages that reject the request timestamp.
func IsClockSkewMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timestamp") ||
		strings.Contains(lower, "ahead of the server") ||
		strings.Contains(lower, "invalid nonce")
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// KindOf classifies any error returned by an exchange client.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}
	if IsClockSkewMessage(err.Error()) {
		return KindClockSkew
	}
	return KindUnknown
}

// IsRetryable reports whether err may be retried by the caller.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// IsWouldTrigger matches a trigger order rejected because its stop price is already crossed.
func IsWouldTrigger(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeWouldTrigger {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "would immediately trigger")
}
