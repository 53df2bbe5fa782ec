// Package failure snapshots an error or a recovered panic into a plain value
// that can be stored and rendered after the failing call has returned.
package failure

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Info is an immutable record of one failure. It must be built with Capture
// or FromPanic at the point the failure is detected; the stack trace it
// carries cannot be recovered afterwards.
type Info struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Trace string `json:"traceback"`
}

// Capture records err together with the current goroutine's stack.
func Capture(err error) Info {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Info{
		Type:  typeName(err),
		Value: err.Error(),
		Trace: string(debug.Stack()),
	}
}

// FromPanic records a value obtained from recover(). Call it inside the
// deferred function so the stack still shows the panicking frames.
func FromPanic(r any) Info {
	var value string
	switch v := r.(type) {
	case error:
		value = v.Error()
	default:
		value = fmt.Sprint(v)
	}
	return Info{
		Type:  fmt.Sprintf("panic(%T)", r),
		Value: value,
		Trace: string(debug.Stack()),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s: %s", i.Type, i.Value)
}

// wrappers only add context; the interesting type sits underneath them.
var wrappers = map[string]bool{
	"*fmt.wrapError":    true,
	"*fmt.wrapErrors":   true,
	"*errors.joinError": true,
}

func typeName(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		if !wrappers[name] {
			return name
		}
		inner := errors.Unwrap(err)
		if inner == nil {
			return name
		}
		err = inner
	}
}
