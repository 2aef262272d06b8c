package genrenet

import (
	"sync"

	"github.com/tphakala/genrenet-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the genrenet package logger scoped to the genrenet module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("genrenet")
	})
	return serviceLogger
}
