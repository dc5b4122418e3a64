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

package pipeline

import "fmt"

// Flow error codes. Handlers map these to stable API responses.
const (
	FlowCodeRunNotFound = "RUN_NOT_FOUND"
	FlowCodeNoActiveRun = "NO_ACTIVE_RUN"
	FlowCodeNoInputs    = "NO_INPUTS"
	FlowCodeRunFinished = "RUN_FINISHED"
	FlowCodeConflict    = "CONFLICT"
	FlowCodeStorage     = "STORAGE_ERROR"
)

// FlowError is the orchestrator's typed failure value. Repository and
// state-machine problems come back as FlowError, never as panics.
type FlowError struct {
	Code    string
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func newFlowError(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func storageError(err error) *FlowError {
	return &FlowError{Code: FlowCodeStorage, Message: "storage operation failed", Err: err}
}
