package sdk

import (
	"encoding/json"
	"net/http"
	"net/url"
)

const (
	topologyEndpoint = "/topology"
	timeEndpoint     = "/time"
	currentEndpoint  = "/tags/current"
	historyEndpoint  = "/tags/history"
	statusEndpoint   = "/status"
	countSuffix      = "/count"
)

// Query mirrors the history request body. Filter is an SQL-like predicate
// such as "device = 'D1' AND tag LIKE 'temp%'".
type Query struct {
	Filter    string `json:"filter,omitempty"`
	Device    string `json:"device,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Status    string `json:"status,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Aggregate string `json:"aggregate,omitempty"`
	Order     string `json:"order,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type Row struct {
	Timestamp string `json:"timestamp"`
	Group     string `json:"group"`
	Node      string `json:"node"`
	Device    string `json:"device"`
	Tag       string `json:"tag,omitempty"`
	Value     string `json:"value,omitempty"`
	DataType  string `json:"datatype,omitempty"`
	Status    string `json:"status,omitempty"`
}

type Bucket struct {
	Bucket string  `json:"bucket"`
	Value  float64 `json:"value"`
	Count  int64   `json:"count"`
}

type Result struct {
	Rows      []Row    `json:"rows,omitempty"`
	Buckets   []Bucket `json:"buckets,omitempty"`
	Interval  string   `json:"interval,omitempty"`
	Aggregate string   `json:"aggregate,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Message   string   `json:"message,omitempty"`
}

type TagValue struct {
	Device    string `json:"device"`
	Tag       string `json:"tag"`
	Value     string `json:"value"`
	DataType  string `json:"datatype"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type Tag struct {
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

type Device struct {
	Status    string         `json:"status"`
	Tags      map[string]Tag `json:"tags"`
	LastBirth string         `json:"last_birth,omitempty"`
	LastDeath string         `json:"last_death,omitempty"`
}

type MetricPath struct {
	Path      string `json:"path"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type Topology struct {
	Tree    map[string]map[string]map[string]Device `json:"tree"`
	Paths   []MetricPath                            `json:"paths"`
	Message string                                  `json:"message,omitempty"`
}

type timeRes struct {
	Time string `json:"time"`
}

type countRes struct {
	Count uint64 `json:"count"`
}

func (sdk *histSDK) Topology(device string) (Topology, error) {
	reqURL := sdk.historianURL + topologyEndpoint
	if device != "" {
		reqURL += "?" + url.Values{"device": {device}}.Encode()
	}

	body, err := sdk.processRequest(http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return Topology{}, err
	}

	var t Topology
	if err := json.Unmarshal(body, &t); err != nil {
		return Topology{}, err
	}

	return t, nil
}

func (sdk *histSDK) CurrentTime() (string, error) {
	body, err := sdk.processRequest(http.MethodGet, sdk.historianURL+timeEndpoint, nil, http.StatusOK)
	if err != nil {
		return "", err
	}

	var t timeRes
	if err := json.Unmarshal(body, &t); err != nil {
		return "", err
	}

	return t.Time, nil
}

func (sdk *histSDK) CurrentTagValue(device, tag string) (TagValue, error) {
	reqURL := sdk.historianURL + currentEndpoint + "?" + url.Values{"device": {device}, "tag": {tag}}.Encode()

	body, err := sdk.processRequest(http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return TagValue{}, err
	}

	var v TagValue
	if err := json.Unmarshal(body, &v); err != nil {
		return TagValue{}, err
	}

	return v, nil
}

func (sdk *histSDK) Status(q Query) (Result, error) {
	return sdk.query(statusEndpoint, q)
}

func (sdk *histSDK) StatusCount(q Query) (uint64, error) {
	return sdk.count(statusEndpoint+countSuffix, q)
}

func (sdk *histSDK) TagHistory(q Query) (Result, error) {
	return sdk.query(historyEndpoint, q)
}

func (sdk *histSDK) TagHistoryCount(q Query) (uint64, error) {
	return sdk.count(historyEndpoint+countSuffix, q)
}

func (sdk *histSDK) query(endpoint string, q Query) (Result, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return Result{}, err
	}

	body, err := sdk.processRequest(http.MethodPost, sdk.historianURL+endpoint, data, http.StatusOK)
	if err != nil {
		return Result{}, err
	}

	var r Result
	if err := json.Unmarshal(body, &r); err != nil {
		return Result{}, err
	}

	return r, nil
}

func (sdk *histSDK) count(endpoint string, q Query) (uint64, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return 0, err
	}

	body, err := sdk.processRequest(http.MethodPost, sdk.historianURL+endpoint, data, http.StatusOK)
	if err != nil {
		return 0, err
	}

	var c countRes
	if err := json.Unmarshal(body, &c); err != nil {
		return 0, err
	}

	return c.Count, nil
}
