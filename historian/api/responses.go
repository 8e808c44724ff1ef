package api

import (
	"net/http"

	"github.com/absmach/sparkpipe/historian"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*topologyRes)(nil)
	_ supermq.Response = (*timeRes)(nil)
	_ supermq.Response = (*tagValueRes)(nil)
	_ supermq.Response = (*resultRes)(nil)
	_ supermq.Response = (*countRes)(nil)
)

type topologyRes struct {
	historian.Topology
}

func (res topologyRes) Code() int {
	return http.StatusOK
}

func (res topologyRes) Headers() map[string]string {
	return map[string]string{}
}

func (res topologyRes) Empty() bool {
	return false
}

type timeRes struct {
	Time string `json:"time"`
}

func (res timeRes) Code() int {
	return http.StatusOK
}

func (res timeRes) Headers() map[string]string {
	return map[string]string{}
}

func (res timeRes) Empty() bool {
	return false
}

type tagValueRes struct {
	historian.TagValue
}

func (res tagValueRes) Code() int {
	return http.StatusOK
}

func (res tagValueRes) Headers() map[string]string {
	return map[string]string{}
}

func (res tagValueRes) Empty() bool {
	return false
}

// resultRes always carries a body; an empty result holds the no-results message.
type resultRes struct {
	historian.Result
}

func (res resultRes) Code() int {
	return http.StatusOK
}

func (res resultRes) Headers() map[string]string {
	return map[string]string{}
}

func (res resultRes) Empty() bool {
	return false
}

type countRes struct {
	Count uint64 `json:"count"`
}

func (res countRes) Code() int {
	return http.StatusOK
}

func (res countRes) Headers() map[string]string {
	return map[string]string{}
}

func (res countRes) Empty() bool {
	return false
}
