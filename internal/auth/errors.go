package auth

import "fmt"

// Error is an authentication failure for one remote system. Help, when set,
// tells the operator how to restore access; a rejected refresh token cannot
// self-heal without a new authorization.
type Error struct {
	System string
	Reason string
	Help   string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s authentication failed: %s", e.System, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Help != "" {
		msg += "\n" + e.Help
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
