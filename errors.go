package strata

import (
	"fmt"
)

// staging and query errors are returned synchronously at the call site.
// remote errors are captured per result slot and surfaced once the whole
// batch has been attempted.

// a queue key is owned by an in-flight batch and cannot be staged or drained
type ReservedKeyError struct {
	Key string
}

func (self *ReservedKeyError) Error() string {
	return fmt.Sprintf("queue key reserved by an in-flight batch: %s", self.Key)
}

// drain of a key with no staged entries
type QueueNotFoundError struct {
	Key string
}

func (self *QueueNotFoundError) Error() string {
	return fmt.Sprintf("no staged entries for queue key: %s", self.Key)
}

// malformed filter/projection argument shape
type QueryTypeError struct {
	Field   string
	Message string
}

func (self *QueryTypeError) Error() string {
	if self.Field != "" {
		return fmt.Sprintf("query: %s (field %q)", self.Message, self.Field)
	}
	return fmt.Sprintf("query: %s", self.Message)
}

// opaque transport failure for one deferred call
type RemoteCallError struct {
	Method     string
	Target     string
	StatusCode int
	Err        error
}

func (self *RemoteCallError) Error() string {
	if self.StatusCode != 0 {
		return fmt.Sprintf(
			"%s %s: %s (status code %d)",
			self.Method,
			self.Target,
			remoteStatusText(self.StatusCode),
			self.StatusCode,
		)
	}
	return fmt.Sprintf("%s %s: %s", self.Method, self.Target, self.Err)
}

func (self *RemoteCallError) Unwrap() error {
	return self.Err
}

// status descriptions for the backend's non-2xx responses
var remoteStatusTexts = map[int]string{
	400: "bad request - missing required fields or invalid field values",
	401: "unauthorized - invalid or missing credentials, or insufficient permissions",
	403: "forbidden - the backend will not allow the operation in this case",
	404: "not found - no such route or the target resource does not exist",
	409: "conflict - the request does not match the backend's state",
	429: "too many requests - the backend wants fewer requests per time period",
	449: "sub-request failed - the backend could not process every part of the request",
	500: "internal server error",
	503: "service unavailable",
	504: "gateway timeout",
}

func remoteStatusText(statusCode int) string {
	if text, ok := remoteStatusTexts[statusCode]; ok {
		return text
	}
	return "unknown status code"
}
