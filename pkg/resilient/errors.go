// Copyright 2025 Insightra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class is the structured error classification, set once at the point of
// origin (the provider adapter) and never re-derived from message text.
type Class string

const (
	ClassConfiguration  Class = "configuration"
	ClassTransport      Class = "transport"
	ClassTimeout        Class = "timeout"
	ClassRateLimited    Class = "rate_limited"
	ClassServer         Class = "server"
	ClassClient         Class = "client"
	ClassSchemaMismatch Class = "schema_mismatch"
	ClassUnexpected     Class = "unexpected"
)

// Retryable reports whether a call failing with this class may be retried.
func (c Class) Retryable() bool {
	switch c {
	case ClassTransport, ClassTimeout, ClassRateLimited, ClassServer:
		return true
	default:
		return false
	}
}

// CallError is the normalized error shape for a single provider attempt.
type CallError struct {
	Class     Class
	Provider  string
	Status    int // transport status when applicable, 0 otherwise
	Message   string
	RequestID string
}

func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d, request %s)",
			e.Provider, e.Message, e.Class, e.Status, e.RequestID)
	}
	return fmt.Sprintf("%s: %s (%s, request %s)", e.Provider, e.Message, e.Class, e.RequestID)
}

// ClassFromStatus maps a transport status code to a classification.
func ClassFromStatus(status int) Class {
	switch {
	case status == 429:
		return ClassRateLimited
	case status >= 500:
		return ClassServer
	case status >= 400:
		return ClassClient
	default:
		return ClassUnexpected
	}
}

// Classify resolves the classification of an arbitrary error. Errors
// originating from adapters carry their class; everything else is
// classified by transport shape, with Unexpected as the catch-all.
func Classify(err error) Class {
	if err == nil {
		return ClassUnexpected
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransport
	}

	return ClassUnexpected
}

// IsRetryable reports whether err may be retried.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}
