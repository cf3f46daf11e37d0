package lifecycle

import "errors"

var (
	ErrWorkerExists    = errors.New("lifecycle: worker already exists")
	ErrWorkerNotFound  = errors.New("lifecycle: worker not found")
	ErrShutdownTimeout = errors.New("lifecycle: shutdown timed out, some workers still running")
	ErrAlreadyRunning  = errors.New("lifecycle: manager already running")
)
