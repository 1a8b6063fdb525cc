package client

import (
	"github.com/mash-protocol/m2m-inventory/pkg/connector"
)

// Category groups protocol error codes for reporting. It carries no
// behavior.
type Category string

const (
	CategoryNone          Category = "none"
	CategoryConnection    Category = "connection"
	CategoryBootstrap     Category = "bootstrap"
	CategoryParameter     Category = "parameter"
	CategoryTimeout       Category = "timeout"
	CategoryNetwork       Category = "network"
	CategoryParse         Category = "parse"
	CategoryMemory        Category = "memory"
	CategoryDNS           Category = "dns"
	CategorySecurity      Category = "security"
	CategoryNotAllowed    Category = "not-allowed"
	CategoryUpdateWarning Category = "update-warning"
	CategoryUpdateError   Category = "update-error"
	CategoryUnknown       Category = "unknown"
)

// ErrorClass is the classification of a protocol error code.
type ErrorClass struct {
	Code     connector.ErrorCode
	Name     string
	Category Category
}

// Classify maps an error code to its name and category.
func Classify(code connector.ErrorCode) ErrorClass {
	return ErrorClass{
		Code:     code,
		Name:     code.String(),
		Category: categoryOf(code),
	}
}

func categoryOf(code connector.ErrorCode) Category {
	switch code {
	case connector.ConnectErrorNone:
		return CategoryNone
	case connector.ConnectAlreadyExists, connector.ConnectNotRegistered:
		return CategoryConnection
	case connector.ConnectBootstrapFailed:
		return CategoryBootstrap
	case connector.ConnectInvalidParameters:
		return CategoryParameter
	case connector.ConnectTimeout:
		return CategoryTimeout
	case connector.ConnectNetworkError:
		return CategoryNetwork
	case connector.ConnectResponseParseFailed:
		return CategoryParse
	case connector.ConnectMemoryConnectFail:
		return CategoryMemory
	case connector.ConnectDnsResolvingFailed:
		return CategoryDNS
	case connector.ConnectSecureConnectionFailed:
		return CategorySecurity
	case connector.ConnectNotAllowed:
		return CategoryNotAllowed
	case connector.UpdateErrorWriteToStorage, connector.UpdateErrorInvalidHash:
		return CategoryUpdateError
	}
	if code.IsUpdate() {
		return CategoryUpdateWarning
	}
	return CategoryUnknown
}
