package session

import "errors"

var (
	ErrNotRunning     = errors.New("session not running")
	ErrAlreadyRunning = errors.New("session already running")
	ErrClosed         = errors.New("session closed")
	ErrSendQueueFull  = errors.New("send queue full")
	ErrMaxPeers       = errors.New("max peers reached")
	ErrSelfDial       = errors.New("dialed self")

	errConnClosed = errors.New("connection closed")
	errDuplicate  = errors.New("duplicate connection")
	errNoRemoteID = errors.New("connection has no remote id")
)
