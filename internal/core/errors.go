// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and match with errors.Is.
var (
	// Capture source errors
	ErrCaptureTimeout = errors.New("tanakai: capture read timeout")
	ErrSourceOpen     = errors.New("tanakai: capture source open failed")

	// Frame decoding errors
	ErrPacketTooShort   = errors.New("tanakai: frame too short")
	ErrUnsupportedProto = errors.New("tanakai: unsupported protocol")
	ErrNotUDP           = errors.New("tanakai: not a udp datagram")

	// Photon protocol errors
	ErrPacketTooSmall   = errors.New("tanakai: photon packet too small")
	ErrMalformedCommand = errors.New("tanakai: malformed photon command")
	ErrFragmentTooShort = errors.New("tanakai: photon fragment too short")
	ErrFragmentInvalid  = errors.New("tanakai: photon fragment rejected")

	// Transport errors
	ErrTransport = errors.New("tanakai: event transport failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("tanakai: invalid configuration")
)
