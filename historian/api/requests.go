package api

import (
	"errors"

	"github.com/absmach/sparkpipe/historian"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var (
	errMissingDevice = errors.New("missing device")
	errMissingTag    = errors.New("missing tag")
	errNegativeLimit = errors.New("limit must not be negative")
)

type topologyReq struct {
	device string
}

func (req topologyReq) validate() error {
	return nil
}

type currentTagReq struct {
	device string
	tag    string
}

func (req currentTagReq) validate() error {
	if req.device == "" {
		return errors.Join(apiutil.ErrMissingID, errMissingDevice)
	}
	if req.tag == "" {
		return errMissingTag
	}

	return nil
}

type historyReq struct {
	historian.Request
}

func (req historyReq) validate() error {
	if req.Limit < 0 {
		return errNegativeLimit
	}

	return nil
}
