// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrInvalidDeps wraps every problem reported by Deps.Validate.
	ErrInvalidDeps = errors.New("daemon: invalid dependencies")

	// ErrNoSystem is returned by App.Run when Bootstrap did not produce a
	// system with a manager.
	ErrNoSystem = errors.New("daemon: no bootstrapped system")

	ErrAlreadyStarted    = errors.New("daemon: manager already started")
	ErrManagerNotStarted = errors.New("daemon: manager not started")

	// ErrListen is returned when the API or metrics listener cannot bind.
	ErrListen = errors.New("daemon: listen failed")
)
