package api

import (
	"context"
	"errors"

	"github.com/absmach/sparkpipe/historian"
	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func topologyEndpoint(svc historian.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(topologyReq)
		if !ok {
			return topologyRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return topologyRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		topo, err := svc.Topology(ctx, req.device)
		if err != nil {
			return topologyRes{}, err
		}

		return topologyRes{Topology: topo}, nil
	}
}

func currentTimeEndpoint(svc historian.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		now, err := svc.CurrentTime(ctx)
		if err != nil {
			return timeRes{}, err
		}

		return timeRes{Time: now}, nil
	}
}

func currentTagValueEndpoint(svc historian.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(currentTagReq)
		if !ok {
			return tagValueRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return tagValueRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		v, err := svc.CurrentTagValue(ctx, req.device, req.tag)
		if err != nil {
			return tagValueRes{}, err
		}

		return tagValueRes{TagValue: v}, nil
	}
}

type queryFunc func(ctx context.Context, req historian.Request) (historian.Result, error)

type countFunc func(ctx context.Context, req historian.Request) (uint64, error)

// historyEndpoint serves both the status and the tag history queries.
func historyEndpoint(query queryFunc) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(historyReq)
		if !ok {
			return resultRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return resultRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		res, err := query(ctx, req.Request)
		if err != nil {
			return resultRes{}, err
		}

		return resultRes{Result: res}, nil
	}
}

func countEndpoint(count countFunc) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(historyReq)
		if !ok {
			return countRes{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return countRes{}, errors.Join(apiutil.ErrValidation, err)
		}

		n, err := count(ctx, req.Request)
		if err != nil {
			return countRes{}, err
		}

		return countRes{Count: n}, nil
	}
}
