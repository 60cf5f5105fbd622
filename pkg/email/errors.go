package email

import "errors"

var (
	ErrFailedToSend   = errors.New("failed to send email")
	ErrInvalidConfig  = errors.New("invalid email configuration")
	ErrInvalidMessage = errors.New("invalid email message")
)
