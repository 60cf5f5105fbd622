package mongo

import "errors"

var (
	// ErrFailedToConnectToMongo is returned once all connection attempts
	// are exhausted.
	ErrFailedToConnectToMongo = errors.New("mongodb connection could not be established")
	ErrHealthcheckFailed      = errors.New("mongodb ping failed")
)
