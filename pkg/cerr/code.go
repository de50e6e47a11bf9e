package cerr

import (
	"net/http"

	"connectrpc.com/connect"
)

type Code int

const (
	OK                 = Code(0)
	Canceled           = Code(1)
	Unknown            = Code(2)
	InvalidArgument    = Code(3)
	DeadlineExceeded   = Code(4)
	NotFound           = Code(5)
	AlreadyExists      = Code(6)
	PermissionDenied   = Code(7)
	ResourceExhausted  = Code(8)
	FailedPrecondition = Code(9)
	Aborted            = Code(10)
	OutOfRange         = Code(11)
	Unimplemented      = Code(12)
	Internal           = Code(13)
	Unavailable        = Code(14)
	DataLoss           = Code(15)
	Unauthenticated    = Code(16)
)

type codeInfo struct {
	name     string
	httpCode int
}

var codeInfos = map[Code]codeInfo{
	OK:                 {"OK", http.StatusOK},
	Canceled:           {"Canceled", 499},
	Unknown:            {"Unknown", http.StatusInternalServerError},
	InvalidArgument:    {"InvalidArgument", http.StatusBadRequest},
	DeadlineExceeded:   {"DeadlineExceeded", http.StatusGatewayTimeout},
	NotFound:           {"NotFound", http.StatusNotFound},
	AlreadyExists:      {"AlreadyExists", http.StatusConflict},
	PermissionDenied:   {"PermissionDenied", http.StatusForbidden},
	ResourceExhausted:  {"ResourceExhausted", http.StatusTooManyRequests},
	FailedPrecondition: {"FailedPrecondition", http.StatusPreconditionFailed},
	Aborted:            {"Aborted", http.StatusConflict},
	OutOfRange:         {"OutOfRange", http.StatusBadRequest},
	Unimplemented:      {"Unimplemented", http.StatusNotImplemented},
	Internal:           {"Internal", http.StatusInternalServerError},
	Unavailable:        {"Unavailable", http.StatusServiceUnavailable},
	DataLoss:           {"DataLoss", http.StatusInternalServerError},
	Unauthenticated:    {"Unauthenticated", http.StatusUnauthorized},
}

func (c Code) String() string {
	if info, ok := codeInfos[c]; ok {
		return info.name
	}
	return "Unknown"
}

// ConnectCode relies on the enum sharing connect's numbering (both follow gRPC status codes).
func (c Code) ConnectCode() connect.Code {
	if c == OK {
		return 0
	}
	if _, ok := codeInfos[c]; !ok {
		return connect.CodeUnknown
	}
	return connect.Code(c)
}

func NewCodeFromConnectError(err error) Code {
	c := Code(connect.CodeOf(err))
	if _, ok := codeInfos[c]; !ok {
		return Unknown
	}
	return c
}

func (c Code) HTTPCode() int {
	if info, ok := codeInfos[c]; ok {
		return info.httpCode
	}
	return http.StatusInternalServerError
}

// ParseCode is the inverse of Code.String; unknown names yield Unknown.
func ParseCode(name string) Code {
	for c, info := range codeInfos {
		if info.name == name {
			return c
		}
	}
	return Unknown
}
