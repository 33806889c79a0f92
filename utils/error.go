package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrDayBusy is returned when another sync/reconcile holds the lock on the same date.
var ErrDayBusy = errors.New("another operation is already running on this day")
