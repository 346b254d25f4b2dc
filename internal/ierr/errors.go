package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrLicenseExpired      = errors.New("license has expired")
	ErrLicenseRevoked      = errors.New("license has been revoked")
	ErrActivationLimit     = errors.New("activation limit reached")
	ErrMachineNotActivated = errors.New("machine is not activated on this license")
)
