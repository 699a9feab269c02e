package base

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/remotescan/pkg/errors"
	"github.com/ajitpratap0/remotescan/pkg/logger"
)

// Phase is the part of the lifecycle an error came from
type Phase string

const (
	PhaseScan   Phase = "scan"
	PhaseModify Phase = "modify"
)

// ErrorHandler decides what a connector error means for the host.
// On the scan path a not-found answer or a configuration problem yields an
// empty result; everything else is returned. On the modify path every error
// is returned.
type ErrorHandler struct {
	connector   string
	logger      *zap.Logger
	errorCounts map[string]int64
	errorMutex  sync.RWMutex
	totalErrors int64
	emptied     int64
	fatalErrors int64
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(connector string, logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		connector:   connector,
		logger:      logger,
		errorCounts: make(map[string]int64),
	}
}

// Handle classifies err. empty is true when the scan should complete with
// no rows instead of failing; the returned error is nil in that case.
func (eh *ErrorHandler) Handle(ctx context.Context, phase Phase, err error) (empty bool, out error) {
	if err == nil {
		return false, nil
	}
	atomic.AddInt64(&eh.totalErrors, 1)

	category := categorizeError(err)
	eh.incrementErrorCount(category)
	outer := outerType(err)

	log := logger.FromContext(ctx, eh.logger)
	fields := []zap.Field{
		zap.Error(err),
		zap.String("error_type", category),
		zap.String("phase", string(phase)),
	}

	// A failed page fetch arrives wrapped as transport and stays fatal even
	// when its cause is a not-found or config error.
	if phase == PhaseScan && (outer == errors.ErrorTypeNotFound || outer == errors.ErrorTypeConfig) {
		atomic.AddInt64(&eh.emptied, 1)
		log.Warn("scan returns no rows", fields...)
		return true, nil
	}

	atomic.AddInt64(&eh.fatalErrors, 1)
	log.Error("connector operation failed", fields...)
	var structured *errors.Error
	if errors.As(err, &structured) {
		return false, err
	}
	return false, errors.Wrap(err, errors.ErrorTypeInternal, eh.connector+" "+string(phase)+" failed")
}

// GetErrorStats returns error statistics
func (eh *ErrorHandler) GetErrorStats() map[string]interface{} {
	eh.errorMutex.RLock()
	defer eh.errorMutex.RUnlock()

	errorCounts := make(map[string]int64, len(eh.errorCounts))
	for k, v := range eh.errorCounts {
		errorCounts[k] = v
	}
	return map[string]interface{}{
		"total_errors":   atomic.LoadInt64(&eh.totalErrors),
		"emptied_scans":  atomic.LoadInt64(&eh.emptied),
		"fatal_errors":   atomic.LoadInt64(&eh.fatalErrors),
		"errors_by_type": errorCounts,
	}
}

// ResetStats resets error statistics
func (eh *ErrorHandler) ResetStats() {
	eh.errorMutex.Lock()
	defer eh.errorMutex.Unlock()

	atomic.StoreInt64(&eh.totalErrors, 0)
	atomic.StoreInt64(&eh.emptied, 0)
	atomic.StoreInt64(&eh.fatalErrors, 0)
	eh.errorCounts = make(map[string]int64)
}

// categorizeError names the innermost structured error type in the chain,
// or "unknown"
func categorizeError(err error) string {
	category := "unknown"
	for err != nil {
		var e *errors.Error
		if !errors.As(err, &e) {
			break
		}
		category = string(e.Type)
		err = e.Cause
	}
	return category
}

func outerType(err error) errors.ErrorType {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

func (eh *ErrorHandler) incrementErrorCount(category string) {
	eh.errorMutex.Lock()
	defer eh.errorMutex.Unlock()
	eh.errorCounts[category]++
}
