// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package texshare

import (
	"errors"
	"fmt"
)

// Sharing errors. Every error returned by this package and its bridges
// matches one of these with errors.Is.
var (
	// ErrNameCollision is returned when a sender name already has a live handle.
	ErrNameCollision = errors.New("texshare: sender name already in use")

	// ErrUnknownSender is returned when no sender is registered under a name.
	ErrUnknownSender = errors.New("texshare: unknown sender")

	// ErrUnsupportedFormat is returned when a pixel format has no
	// cross-process shareable equivalent.
	ErrUnsupportedFormat = errors.New("texshare: pixel format cannot be shared")

	// ErrDescriptorMismatch is returned when a copy source does not match
	// the shared texture's size or format. The destination is left untouched.
	ErrDescriptorMismatch = errors.New("texshare: source does not match shared descriptor")

	// ErrDeviceLost is returned when the graphics device was reset. Every
	// handle of every sender is invalid until the sessions are recreated.
	ErrDeviceLost = errors.New("texshare: graphics device lost")

	// ErrAllocationFailure is returned when GPU memory for a shared texture
	// cannot be allocated.
	ErrAllocationFailure = errors.New("texshare: shared texture allocation failed")

	// ErrInvalidName is returned for empty or malformed sender names.
	ErrInvalidName = errors.New("texshare: invalid sender name")

	// ErrInvalidDimensions is returned when width or height is zero or too large.
	ErrInvalidDimensions = errors.New("texshare: invalid dimensions")

	// ErrSessionDestroyed is returned when operating on a destroyed session.
	ErrSessionDestroyed = errors.New("texshare: session destroyed")

	// ErrServiceClosed is returned after Service.Close.
	ErrServiceClosed = errors.New("texshare: service closed")

	// ErrTimelineClosed is returned when submitting work to a closed timeline.
	ErrTimelineClosed = errors.New("texshare: render timeline closed")

	// ErrImportUnsupported is returned by bridges that cannot open a
	// foreign handle.
	ErrImportUnsupported = errors.New("texshare: shared handle import not supported")
)

// SenderError records a failed operation on a named sender.
type SenderError struct {
	Op   string
	Name SenderName
	Err  error
}

func (e *SenderError) Error() string {
	return fmt.Sprintf("texshare: %s %q: %v", e.Op, string(e.Name), e.Err)
}

func (e *SenderError) Unwrap() error { return e.Err }

// senderErr wraps err unless it is nil or already a SenderError for the same name.
func senderErr(op string, name SenderName, err error) error {
	if err == nil {
		return nil
	}
	var se *SenderError
	if errors.As(err, &se) && se.Name == name {
		return err
	}
	return &SenderError{Op: op, Name: name, Err: err}
}

// IsFatal reports whether err invalidates the session it came from.
// Only device loss is fatal; every other sharing failure costs one frame.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
