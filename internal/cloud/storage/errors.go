package storage

import (
	"errors"
	"strings"
)

var (
	// ErrInsufficientSpace is wrapped by the local backend when the destination filesystem is full
	ErrInsufficientSpace = errors.New("insufficient disk space")
	// ErrEmptyKey indicates an object key resolved to nothing
	ErrEmptyKey = errors.New("empty object key")
)

// Lower-case substrings recognized by the classifiers below. The SDKs wrap
// service error codes in long messages, so matching on text is the only
// thing that works across the local, S3 and Azure backends.
var (
	diskFullIndicators = []string{
		"insufficient disk space", // ErrInsufficientSpace, diskspace.InsufficientSpaceError
		"no space left on device", // ENOSPC from os writes
		"not enough space",        // Windows ERROR_DISK_FULL
		"disk quota exceeded",     // EDQUOT
	}
	credentialIndicators = []string{
		"accessdenied",          // S3
		"invalidaccesskeyid",    // S3
		"signaturedoesnotmatch", // S3
		"expiredtoken",          // S3 with session credentials
		"authenticationfailed",  // Azure shared key or SAS
		"authorizationfailure",  // Azure SAS scope
		"403",
		"unauthorized",
	}
	networkIndicators = []string{
		"connection", // refused, reset
		"timeout",
		"network",
		"eof",
		"broken pipe",
		"tls handshake",
		"no such host",
	}
)

func containsAny(err error, indicators []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// IsDiskFullError reports whether err was caused by the destination running out of space.
func IsDiskFullError(err error) bool {
	return errors.Is(err, ErrInsufficientSpace) || containsAny(err, diskFullIndicators)
}

// IsNetworkError reports whether err looks like a transport failure.
func IsNetworkError(err error) bool {
	return containsAny(err, networkIndicators)
}

// IsCredentialError reports whether err was rejected for authentication or authorization.
func IsCredentialError(err error) bool {
	return containsAny(err, credentialIndicators)
}

// Describe shortens err into a reason suitable for a per-file failure line,
// prefixed with its category when one is recognized.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case IsDiskFullError(err):
		return "disk full: " + err.Error()
	case IsCredentialError(err):
		return "access denied: " + err.Error()
	case IsNetworkError(err):
		return "network: " + err.Error()
	default:
		return err.Error()
	}
}
