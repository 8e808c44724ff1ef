// Package sdk is a Go client for the historian HTTP API.
package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const CTJSON string = "application/json"

type SDK interface {
	// Topology returns the live device tree, narrowed to device when it is
	// not empty.
	//
	// example:
	//  topo, _ := sdk.Topology("plant1/edge1/D1")
	//  for _, p := range topo.Paths {
	//    fmt.Println(p.Path, p.Value)
	//  }
	Topology(device string) (Topology, error)

	// CurrentTime returns the historian clock in its configured zone.
	CurrentTime() (string, error)

	// CurrentTagValue returns the latest value of one tag.
	//
	// example:
	//  v, _ := sdk.CurrentTagValue("D1", "temperature")
	//  fmt.Println(v.Value, v.Timestamp)
	CurrentTagValue(device, tag string) (TagValue, error)

	// Status queries device status transitions.
	//
	// example:
	//  res, _ := sdk.Status(sdk.Query{Device: "D1", Start: "2024-05-01 00:00:00"})
	//  fmt.Println(res.Rows)
	Status(q Query) (Result, error)

	StatusCount(q Query) (uint64, error)

	// TagHistory queries stored tag values, raw or bucketed.
	//
	// example:
	//  res, _ := sdk.TagHistory(sdk.Query{
	//    Tag:    "temperature",
	//    Start:  "2024-05-01 00:00:00",
	//    Bucket: "auto",
	//  })
	//  fmt.Println(res.Interval, res.Buckets)
	TagHistory(q Query) (Result, error)

	TagHistoryCount(q Query) (uint64, error)
}

type histSDK struct {
	historianURL string
	client       *http.Client
}

type Config struct {
	HistorianURL    string
	TLSVerification bool
	Timeout         time.Duration
}

func NewSDK(cfg Config) SDK {
	return &histSDK{
		historianURL: cfg.HistorianURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *histSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if json.Unmarshal(body, &e) == nil && e.Err != "" {
			return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, e.Err)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
