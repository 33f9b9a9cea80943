package errormapper

import (
	"errors"

	"github.com/tdimeji/mmsgate/internal/mmserror"
	"github.com/tdimeji/mmsgate/pkg/codes"
)

// MapError translates a terminal request error into the error class code
// surfaced through the API and persisted alongside the failed status.
func MapError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, mmserror.ErrNoConfig):
		return codes.ErrorCodeNoConfig
	case errors.Is(err, mmserror.ErrAcquireTimeout):
		return codes.ErrorCodeAcquireTimeout
	case errors.Is(err, mmserror.ErrNetworkLost):
		return codes.ErrorCodeIO
	case errors.Is(err, mmserror.ErrThrottled):
		return codes.ErrorCodeThrottled
	}

	var protoErr *mmserror.ProtocolError
	if errors.As(err, &protoErr) {
		return codes.ErrorCodeProtocol
	}
	var malformed *mmserror.MalformedRequestError
	if errors.As(err, &malformed) {
		return codes.ErrorCodeMalformed
	}
	var ioErr *mmserror.IOError
	if errors.As(err, &ioErr) {
		return codes.ErrorCodeIO
	}
	return codes.ErrorCodeSystemError
}
