package watermark

import "codeberg.org/mutker/soilctl/internal/errors"

const (
	ErrMeasurementInProgress = errors.ErrorCode("watermark_measurement_in_progress")
	ErrSingularity           = errors.ErrorCode("watermark_singularity")
	ErrHardwareAccess        = errors.ErrorCode("watermark_hardware_access_failed")
	ErrInvalidCalibration    = errors.ErrorCode("watermark_invalid_calibration")
	ErrInvalidChannel        = errors.ErrInvalidChannel
	ErrInvalidKind           = errors.ErrInvalidOutput
	ErrDumpFailed            = errors.ErrorCode("watermark_dump_failed")
)
