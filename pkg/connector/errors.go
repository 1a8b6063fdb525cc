package connector

import (
	"errors"
	"fmt"
	"strconv"
)

// Connector errors.
var (
	ErrNotRegistered   = errors.New("not registered")
	ErrClosed          = errors.New("connector closed")
	ErrAlreadySetup    = errors.New("connector already set up")
	ErrUnknownResource = errors.New("resource not published")
	ErrNotObservable   = errors.New("resource not observable")
)

// ErrorCode is a protocol error reported through Handler.OnError.
// Values follow the device management SDK's connect and update codes.
type ErrorCode int

const (
	ConnectErrorNone              ErrorCode = 0x00
	ConnectAlreadyExists          ErrorCode = 0x01
	ConnectBootstrapFailed        ErrorCode = 0x02
	ConnectInvalidParameters      ErrorCode = 0x03
	ConnectNotRegistered          ErrorCode = 0x04
	ConnectTimeout                ErrorCode = 0x05
	ConnectNetworkError           ErrorCode = 0x06
	ConnectResponseParseFailed    ErrorCode = 0x07
	ConnectUnknownError           ErrorCode = 0x08
	ConnectMemoryConnectFail      ErrorCode = 0x09
	ConnectNotAllowed             ErrorCode = 0x0A
	ConnectSecureConnectionFailed ErrorCode = 0x0B
	ConnectDnsResolvingFailed     ErrorCode = 0x0C

	UpdateWarningCertificateNotFound ErrorCode = 0x0401
	UpdateWarningIdentityNotFound    ErrorCode = 0x0402
	UpdateWarningCertificateInvalid  ErrorCode = 0x0403
	UpdateWarningSignatureInvalid    ErrorCode = 0x0404
	UpdateWarningVendorMismatch      ErrorCode = 0x0405
	UpdateWarningClassMismatch       ErrorCode = 0x0406
	UpdateWarningDeviceMismatch      ErrorCode = 0x0407
	UpdateWarningURINotFound         ErrorCode = 0x0408
	UpdateWarningRollbackProtection  ErrorCode = 0x0409
	UpdateWarningUnknown             ErrorCode = 0x040A

	UpdateErrorWriteToStorage ErrorCode = 0x0501
	UpdateErrorInvalidHash    ErrorCode = 0x0502
)

var errorCodeNames = map[ErrorCode]string{
	ConnectErrorNone:                 "ConnectErrorNone",
	ConnectAlreadyExists:             "ConnectAlreadyExists",
	ConnectBootstrapFailed:           "ConnectBootstrapFailed",
	ConnectInvalidParameters:         "ConnectInvalidParameters",
	ConnectNotRegistered:             "ConnectNotRegistered",
	ConnectTimeout:                   "ConnectTimeout",
	ConnectNetworkError:              "ConnectNetworkError",
	ConnectResponseParseFailed:       "ConnectResponseParseFailed",
	ConnectUnknownError:              "ConnectUnknownError",
	ConnectMemoryConnectFail:         "ConnectMemoryConnectFail",
	ConnectNotAllowed:                "ConnectNotAllowed",
	ConnectSecureConnectionFailed:    "ConnectSecureConnectionFailed",
	ConnectDnsResolvingFailed:        "ConnectDnsResolvingFailed",
	UpdateWarningCertificateNotFound: "UpdateWarningCertificateNotFound",
	UpdateWarningIdentityNotFound:    "UpdateWarningIdentityNotFound",
	UpdateWarningCertificateInvalid:  "UpdateWarningCertificateInvalid",
	UpdateWarningSignatureInvalid:    "UpdateWarningSignatureInvalid",
	UpdateWarningVendorMismatch:      "UpdateWarningVendorMismatch",
	UpdateWarningClassMismatch:       "UpdateWarningClassMismatch",
	UpdateWarningDeviceMismatch:      "UpdateWarningDeviceMismatch",
	UpdateWarningURINotFound:         "UpdateWarningURINotFound",
	UpdateWarningRollbackProtection:  "UpdateWarningRollbackProtection",
	UpdateWarningUnknown:             "UpdateWarningUnknown",
	UpdateErrorWriteToStorage:        "UpdateErrorWriteToStorage",
	UpdateErrorInvalidHash:           "UpdateErrorInvalidHash",
}

// String returns the code name, or "UNKNOWN".
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsKnown returns true for codes listed above.
func (c ErrorCode) IsKnown() bool {
	_, ok := errorCodeNames[c]
	return ok
}

// IsUpdate returns true for firmware update warnings and errors.
func (c ErrorCode) IsUpdate() bool {
	return c >= UpdateWarningCertificateNotFound && c <= UpdateErrorInvalidHash && c.IsKnown()
}

// ParseErrorCode accepts a code name ("ConnectTimeout") or a number.
func ParseErrorCode(s string) (ErrorCode, error) {
	for code, name := range errorCodeNames {
		if name == s {
			return code, nil
		}
	}
	if n, err := strconv.ParseInt(s, 0, 32); err == nil {
		return ErrorCode(n), nil
	}
	return 0, fmt.Errorf("unknown error code %q", s)
}
