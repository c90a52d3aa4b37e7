package hardware

import "codeberg.org/mutker/soilctl/internal/errors"

const (
	// Initialization and Lifecycle Errors
	ErrNotInitialized = errors.ErrorCode("hardware_not_initialized")
	ErrInitFailed     = errors.ErrorCode("hardware_init_failed")
	ErrShutdownFailed = errors.ErrorCode("hardware_shutdown_failed")
	ErrInvalidConfig  = errors.ErrorCode("hardware_invalid_config")

	// Device Discovery Errors
	ErrPinNotFound = errors.ErrorCode("hardware_pin_not_found")
	ErrBusOpen     = errors.ErrorCode("hardware_bus_open_failed")
	ErrADCNotFound = errors.ErrorCode("hardware_adc_not_found")

	// I/O Errors
	ErrWriteFailed = errors.ErrorCode("hardware_write_failed")
	ErrReadFailed  = errors.ErrorCode("hardware_read_failed")
)
