package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Ning0612/ocsync/internal/domain"
)

// Error is a classified server failure.
type Error struct {
	Op     string
	Path   string
	Code   domain.ResultCode
	Status int
	Phrase string
	// Cert is the rejected server certificate for SSL_RECOVERABLE_PEER_UNVERIFIED.
	Cert *x509.Certificate
	Err  error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (%d %s)", e.Op, e.Path, e.Code, e.Status, e.Phrase)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// UntrustedCertError is returned by the TLS verifier for a certificate
// the user has not accepted.
type UntrustedCertError struct {
	Cert *x509.Certificate
	Err  error
}

func (e *UntrustedCertError) Error() string {
	return "untrusted server certificate: " + e.Err.Error()
}

func (e *UntrustedCertError) Unwrap() error { return e.Err }

// Classify maps a raw client error onto a result code. It returns nil
// for nil and leaves an already classified error untouched.
func Classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	e := &Error{Op: op, Path: path, Err: err}

	var (
		untrusted *UntrustedCertError
		unknownCA x509.UnknownAuthorityError
		hostname  x509.HostnameError
		invalid   x509.CertificateInvalidError
		verifyErr *tls.CertificateVerificationError
		status    StatusCoder
		opErr     *net.OpError
		dnsErr    *net.DNSError
	)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Code = domain.CodeCancelled
	case errors.Is(err, domain.ErrNotFound):
		e.Code = domain.CodeFileNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		e.Code = domain.CodeForbidden
	case errors.Is(err, domain.ErrSyncConflict):
		e.Code = domain.CodeSyncConflict
	case errors.Is(err, domain.ErrAlreadyExists):
		e.Code = domain.CodeInvalidOverwrite
	case errors.Is(err, domain.ErrInvalidName):
		e.Code = domain.CodeInvalidCharacterInName
	case errors.As(err, &untrusted):
		e.Code = domain.CodeSSLRecoverablePeerUnverified
		e.Cert = untrusted.Cert
	case errors.As(err, &unknownCA):
		e.Code = domain.CodeSSLRecoverablePeerUnverified
		e.Cert = unknownCA.Cert
	case errors.As(err, &hostname):
		e.Code = domain.CodeSSLRecoverablePeerUnverified
		e.Cert = hostname.Certificate
	case errors.As(err, &invalid):
		e.Code = domain.CodeSSLRecoverablePeerUnverified
		e.Cert = invalid.Cert
	case errors.As(err, &verifyErr):
		e.Code = domain.CodeSSLRecoverablePeerUnverified
		if len(verifyErr.UnverifiedCertificates) > 0 {
			e.Cert = verifyErr.UnverifiedCertificates[0]
		}
	case errors.As(err, &status):
		e.Status = status.StatusCode()
		e.Phrase = http.StatusText(e.Status)
		e.Code = CodeForStatus(e.Status)
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		e.Code = domain.CodeHostNotAvailable
	default:
		e.Code = domain.CodeUnknownError
	}
	return e
}

// CodeForStatus maps an HTTP status onto a result code.
func CodeForStatus(status int) domain.ResultCode {
	switch {
	case status >= 200 && status < 300:
		return domain.CodeOK
	case status == http.StatusUnauthorized:
		return domain.CodeUnauthorized
	case status == http.StatusForbidden:
		return domain.CodeForbidden
	case status == http.StatusNotFound:
		return domain.CodeFileNotFound
	case status == http.StatusPreconditionFailed:
		return domain.CodeSyncConflict
	case status == http.StatusServiceUnavailable:
		return domain.CodeSpecificServiceUnavailable
	case status >= 500:
		return domain.CodeServiceUnavailable
	default:
		return domain.CodeUnknownError
	}
}

// CodeFor returns the result code of any error.
func CodeFor(err error) domain.ResultCode {
	if err == nil {
		return domain.CodeOK
	}
	var e *Error
	if errors.As(Classify("", "", err), &e) {
		return e.Code
	}
	return domain.CodeUnknownError
}

// ResultFor fills the failure fields of a result from err.
func ResultFor(kind domain.OperationKind, err error) domain.Result {
	res := domain.Result{Kind: kind, Code: domain.CodeOK}
	if err == nil {
		return res
	}
	res.Err = err
	res.Code = domain.CodeUnknownError

	var e *Error
	if errors.As(Classify("", "", err), &e) {
		res.Code = e.Code
		res.HTTPCode = e.Status
		res.HTTPPhrase = e.Phrase
	}
	return res
}

// UploadResultFor maps an upload failure onto the value kept in the upload log.
func UploadResultFor(err error) domain.UploadResult {
	if err == nil {
		return domain.UploadSucceeded
	}
	switch CodeFor(err) {
	case domain.CodeUnauthorized:
		return domain.UploadCredentialError
	case domain.CodeForbidden:
		return domain.UploadPrivilegesError
	case domain.CodeFileNotFound:
		return domain.UploadFileNotFound
	case domain.CodeSyncConflict:
		return domain.UploadConflictError
	case domain.CodeCancelled:
		return domain.UploadCancelled
	case domain.CodeHostNotAvailable, domain.CodeServiceUnavailable, domain.CodeSpecificServiceUnavailable:
		return domain.UploadNetworkError
	}
	return domain.UploadUnknownError
}
