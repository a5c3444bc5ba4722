//go:build !linux

package ble

import (
	"errors"
	"runtime"
)

// OpenHostStack fails outside Linux. Only the BlueZ host stack is wired.
func OpenHostStack() (Stack, error) {
	return nil, errors.New("ble: peripheral role is not supported on " + runtime.GOOS)
}
