/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package errors

// Per-package code ranges, mirroring the registry pattern used to avoid
// code collisions across packages of the same module.
const (
	MinPkgOid       = 100
	MinPkgVarbind   = 200
	MinPkgTarget    = 300
	MinPkgCodec     = 400
	MinPkgMib       = 500
	MinPkgIdGen     = 600
	MinPkgSocket    = 700
	MinPkgEngine    = 800
	MinPkgOps       = 900
	MinPkgWalk      = 1000
	MinPkgBulkWalk  = 1100
	MinPkgAdaptive  = 1200
	MinPkgTable     = 1300
	MinPkgMulti     = 1400
	MinPkgBreaker   = 1500
	MinPkgRouter    = 1600
	MinPkgConfig    = 1700
	MinPkgLogger    = 1800
	MinPkgSnmpClient = 1900

	MinAvailable = 2000
)

// Kind classifies an Error per the SNMP error taxonomy (§7): it tells a
// caller how to react (retry, surface, log-and-drop) without inspecting
// the numeric code.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUser
	KindSecurity
	KindResource
	KindDevice
	KindProtocol
	KindTransient
	KindConfiguration
	KindService
	KindV2cException
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user_error"
	case KindSecurity:
		return "security_error"
	case KindResource:
		return "resource_error"
	case KindDevice:
		return "device_error"
	case KindProtocol:
		return "protocol_error"
	case KindTransient:
		return "transient_error"
	case KindConfiguration:
		return "configuration_error"
	case KindService:
		return "service_error"
	case KindV2cException:
		return "v2c_exception"
	default:
		return "unknown"
	}
}

// Retriable reports whether the taxonomy in §7 considers this Kind worth
// retrying automatically. Only transient_error and a couple of specific
// device/resource codes are retriable; the generic rule is keyed on Kind,
// specific overrides are keyed on CodeError (see Retriable()).
func (k Kind) Retriable() bool {
	return k == KindTransient
}

// SnmpCodeError pairs a registered CodeError with its Kind, so a single
// lookup gives both the numeric code and the taxonomy bucket.
type SnmpCodeError struct {
	CodeError
	Kind Kind
}

var (
	ErrGetBulkRequiresV2c  = SnmpCodeError{NewCodeError(MinPkgOps + 1), KindUser}
	ErrDuplicateRequestID  = SnmpCodeError{NewCodeError(MinPkgEngine + 1), KindProtocol}
	ErrTimeout             = SnmpCodeError{NewCodeError(MinPkgEngine + 2), KindTransient}
	ErrUnknownResponse     = SnmpCodeError{NewCodeError(MinPkgEngine + 3), KindProtocol}
	ErrDecodeFailure       = SnmpCodeError{NewCodeError(MinPkgEngine + 4), KindProtocol}
	ErrNoSuchName          = SnmpCodeError{NewCodeError(MinPkgOps + 2), KindUser}
	ErrBadValue            = SnmpCodeError{NewCodeError(MinPkgOps + 3), KindUser}
	ErrReadOnly            = SnmpCodeError{NewCodeError(MinPkgOps + 4), KindUser}
	ErrWrongType           = SnmpCodeError{NewCodeError(MinPkgOps + 5), KindUser}
	ErrWrongValue          = SnmpCodeError{NewCodeError(MinPkgOps + 6), KindUser}
	ErrNoAccess            = SnmpCodeError{NewCodeError(MinPkgOps + 7), KindSecurity}
	ErrNotWritable         = SnmpCodeError{NewCodeError(MinPkgOps + 8), KindSecurity}
	ErrAuthorization       = SnmpCodeError{NewCodeError(MinPkgOps + 9), KindSecurity}
	ErrBadCommunity        = SnmpCodeError{NewCodeError(MinPkgOps + 10), KindSecurity}
	ErrTooBig              = SnmpCodeError{NewCodeError(MinPkgOps + 11), KindResource}
	ErrResourceUnavailable = SnmpCodeError{NewCodeError(MinPkgOps + 12), KindResource}
	ErrGenErr              = SnmpCodeError{NewCodeError(MinPkgOps + 13), KindDevice}
	ErrCommitFailed        = SnmpCodeError{NewCodeError(MinPkgOps + 14), KindDevice}
	ErrUndoFailed          = SnmpCodeError{NewCodeError(MinPkgOps + 15), KindDevice}
	ErrHostUnreachable     = SnmpCodeError{NewCodeError(MinPkgOps + 16), KindConfiguration}
	ErrNetworkUnreachable  = SnmpCodeError{NewCodeError(MinPkgOps + 17), KindConfiguration}
	ErrConnectionRefused   = SnmpCodeError{NewCodeError(MinPkgOps + 18), KindService}
	ErrAllExceptions       = SnmpCodeError{NewCodeError(MinPkgOps + 19), KindV2cException}
	ErrCircuitBreakerOpen  = SnmpCodeError{NewCodeError(MinPkgBreaker + 1), KindTransient}
	ErrNoAvailableEngine   = SnmpCodeError{NewCodeError(MinPkgRouter + 1), KindTransient}
	ErrInvalidOID          = SnmpCodeError{NewCodeError(MinPkgOid + 1), KindUser}
	ErrNotFound            = SnmpCodeError{NewCodeError(MinPkgMib + 1), KindUser}
	ErrInvalidInstance     = SnmpCodeError{NewCodeError(MinPkgMib + 2), KindUser}
	ErrInvalidName         = SnmpCodeError{NewCodeError(MinPkgMib + 3), KindUser}
	ErrMultiTaskTimeout    = SnmpCodeError{NewCodeError(MinPkgMulti + 1), KindTransient}
	ErrMultiNetworkError   = SnmpCodeError{NewCodeError(MinPkgMulti + 2), KindTransient}
	ErrMultiTaskFailed     = SnmpCodeError{NewCodeError(MinPkgMulti + 3), KindService}
	ErrServiceNotStarted   = SnmpCodeError{NewCodeError(MinPkgSnmpClient + 1), KindService}
	ErrUnknownEngine       = SnmpCodeError{NewCodeError(MinPkgSnmpClient + 2), KindUser}
	ErrInvalidTarget       = SnmpCodeError{NewCodeError(MinPkgTarget + 1), KindUser}
	ErrDNSResolution       = SnmpCodeError{NewCodeError(MinPkgTarget + 2), KindConfiguration}
	ErrInvalidOptions      = SnmpCodeError{NewCodeError(MinPkgOps + 20), KindUser}
	ErrInvalidConfig       = SnmpCodeError{NewCodeError(MinPkgConfig + 1), KindUser}
)

// Retriable applies the §7 retriability rule: timeout, too_big and
// gen_err are retriable; every user_error, security_error and
// configuration_error kind is not, regardless of the generic Kind rule.
func Retriable(c SnmpCodeError) bool {
	switch c.CodeError {
	case ErrTimeout.CodeError, ErrTooBig.CodeError, ErrGenErr.CodeError:
		return true
	}
	return c.Kind.Retriable()
}

func init() {
	msgs := map[CodeError]string{
		ErrGetBulkRequiresV2c.CodeError:  "get_bulk requires snmp version v2c",
		ErrDuplicateRequestID.CodeError:  "duplicate request id already pending",
		ErrTimeout.CodeError:             "request timed out",
		ErrUnknownResponse.CodeError:     "response did not match any pending request",
		ErrDecodeFailure.CodeError:       "failed to decode datagram: %s",
		ErrNoSuchName.CodeError:          "no such name",
		ErrBadValue.CodeError:            "bad value",
		ErrReadOnly.CodeError:            "object is read only",
		ErrWrongType.CodeError:           "wrong type: %s",
		ErrWrongValue.CodeError:          "wrong value",
		ErrNoAccess.CodeError:            "no access",
		ErrNotWritable.CodeError:         "not writable",
		ErrAuthorization.CodeError:       "authorization error",
		ErrBadCommunity.CodeError:        "bad community",
		ErrTooBig.CodeError:              "response too big",
		ErrResourceUnavailable.CodeError: "resource unavailable",
		ErrGenErr.CodeError:              "generic agent error",
		ErrCommitFailed.CodeError:        "commit failed",
		ErrUndoFailed.CodeError:          "undo failed",
		ErrHostUnreachable.CodeError:     "host unreachable: %s",
		ErrNetworkUnreachable.CodeError:  "network unreachable",
		ErrConnectionRefused.CodeError:   "connection refused",
		ErrAllExceptions.CodeError:       "response contains only v2c exception varbinds",
		ErrCircuitBreakerOpen.CodeError:  "circuit breaker open",
		ErrNoAvailableEngine.CodeError:   "no available engine",
		ErrInvalidOID.CodeError:          "invalid oid: %s",
		ErrNotFound.CodeError:            "not found: %s",
		ErrInvalidInstance.CodeError:     "invalid instance: %s",
		ErrInvalidName.CodeError:         "invalid name: %s",
		ErrMultiTaskTimeout.CodeError:    "task timed out",
		ErrMultiNetworkError.CodeError:   "network error: %s",
		ErrMultiTaskFailed.CodeError:     "task failed: %s",
		ErrServiceNotStarted.CodeError:   "client not started and auto_start_services is disabled",
		ErrUnknownEngine.CodeError:       "unknown engine: %s",
		ErrInvalidTarget.CodeError:       "invalid target: %s",
		ErrDNSResolution.CodeError:       "dns resolution failed for %s",
		ErrInvalidOptions.CodeError:      "invalid options",
		ErrInvalidConfig.CodeError:       "invalid config",
	}

	RegisterIdFctMessage(CodeError(1), func(code CodeError) string {
		if m, ok := msgs[code]; ok {
			return m
		}
		return NullMessage
	})
}
