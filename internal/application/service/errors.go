package service

import "errors"

// ErrAlertNotFound is returned for operations on an unknown alert ID.
var ErrAlertNotFound = errors.New("alert not found")

// ErrInvalidAlert is returned when an alert has no instrument or target.
var ErrInvalidAlert = errors.New("invalid alert")
