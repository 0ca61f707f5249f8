package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, rel, want string
	}{
		{"", "a.txt", "a.txt"},
		{"backups", "a.txt", "backups/a.txt"},
		{"/backups/", "dir/a.txt", "backups/dir/a.txt"},
		{"backups", "/dir/a.txt", "backups/dir/a.txt"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.rel); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.prefix, tt.rel, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("write /x: no space left on device"), "disk full: write /x: no space left on device"},
		{errors.New("403 Forbidden"), "access denied: 403 Forbidden"},
		{errors.New("dial tcp: i/o timeout"), "network: dial tcp: i/o timeout"},
		{errors.New("bucket missing"), "bucket missing"},
		{fmt.Errorf("put a.txt: %w", ErrInsufficientSpace), "disk full: put a.txt: insufficient disk space"},
		{errors.New("operation error S3: PutObject, api error AccessDenied: Access Denied"), "access denied: operation error S3: PutObject, api error AccessDenied: Access Denied"},
		{errors.New("RESPONSE 403: AuthenticationFailed"), "access denied: RESPONSE 403: AuthenticationFailed"},
		{errors.New("dial tcp: lookup acct.blob.core.windows.net: no such host"), "network: dial tcp: lookup acct.blob.core.windows.net: no such host"},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		disk, cred bool
		network    bool
	}{
		{"nil", nil, false, false, false},
		{"enospc", errors.New("write: no space left on device"), true, false, false},
		{"quota", errors.New("disk quota exceeded"), true, false, false},
		{"wrapped sentinel", fmt.Errorf("x: %w", ErrInsufficientSpace), true, false, false},
		{"expired token", errors.New("api error ExpiredToken: The provided token has expired"), false, true, false},
		{"bad signature", errors.New("SignatureDoesNotMatch"), false, true, false},
		{"azure sas scope", errors.New("AuthorizationFailure"), false, true, false},
		{"reset", errors.New("read tcp: connection reset by peer"), false, false, true},
		{"unexpected eof", errors.New("unexpected EOF"), false, false, true},
		{"plain", errors.New("bucket missing"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDiskFullError(tt.err); got != tt.disk {
				t.Errorf("IsDiskFullError() = %v, want %v", got, tt.disk)
			}
			if got := IsCredentialError(tt.err); got != tt.cred {
				t.Errorf("IsCredentialError() = %v, want %v", got, tt.cred)
			}
			if got := IsNetworkError(tt.err); got != tt.network {
				t.Errorf("IsNetworkError() = %v, want %v", got, tt.network)
			}
		})
	}
}
