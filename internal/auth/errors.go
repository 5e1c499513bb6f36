package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
)

// LockedError reports an active lockout. It matches common.ErrLocked.
type LockedError struct {
	Remaining time.Duration
}

// Minutes is the remaining lock time rounded up to whole minutes.
func (e *LockedError) Minutes() int64 {
	ms := e.Remaining.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return (ms + 59999) / 60000
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v, try again in %d minutes", common.ErrLocked, e.Minutes())
}

func (e *LockedError) Unwrap() error {
	return common.ErrLocked
}

// WrongPasswordError reports a failed verification that did not trigger a
// lockout. It matches common.ErrWrongPassword.
type WrongPasswordError struct {
	AttemptsLeft int
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("%v, %d attempts left", common.ErrWrongPassword, e.AttemptsLeft)
}

func (e *WrongPasswordError) Unwrap() error {
	return common.ErrWrongPassword
}
