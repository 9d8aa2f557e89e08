package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
)

// Response is the envelope every request resolves with.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// OK wraps a result value in a successful response. A value that cannot be
// marshalled turns the response into a failure.
func OK(v interface{}) Response {
	if v == nil {
		return Response{Success: true}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Fail(tabwatterrors.Wrap(err, tabwatterrors.ErrCodeInternal, "failed to encode result"))
	}
	return Response{Success: true, Result: raw}
}

// Fail converts err into a failed response, keeping its error code.
func Fail(err error) Response {
	if err == nil {
		return Response{Success: false, Error: "unknown error", Code: string(tabwatterrors.ErrCodeInternal)}
	}
	var twErr *tabwatterrors.TabwattError
	if !errors.As(err, &twErr) {
		return Response{Success: false, Error: err.Error(), Code: string(tabwatterrors.ErrCodeInternal)}
	}
	msg := twErr.Message
	if twErr.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, twErr.Cause)
	}
	return Response{Success: false, Error: msg, Code: string(twErr.Code)}
}

// Err returns the response failure as an error, or nil on success.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = "request failed"
	}
	code := tabwatterrors.ErrorCode(r.Code)
	if code == "" {
		code = tabwatterrors.ErrCodeInternal
	}
	return tabwatterrors.New(code, msg)
}

// Decode unmarshals the result into v. A failed response returns its error.
func (r Response) Decode(v interface{}) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Result) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
