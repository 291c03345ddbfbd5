/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// Package command talks to a running go-gpspod API server.
package command

import (
	"errors"
	"fmt"

	"github.com/imroc/req"

	"github.com/gpspod/go-gpspod/pkg/config"
	"github.com/gpspod/go-gpspod/pkg/srv"
)

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s:%d/api", cfg.API.Host, cfg.API.Port),
	}
}

// Info requests the device identification from the server
func (c *ApiClient) Info() (*srv.InfoJSON, error) {
	r, err := req.Get(fmt.Sprintf("%s/info", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	info := &srv.InfoJSON{}
	if err := r.ToJSON(info); err != nil {
		return nil, err
	}
	return info, nil
}

// Status requests the battery charge from the server
func (c *ApiClient) Status() (*srv.StatusJSON, error) {
	r, err := req.Get(fmt.Sprintf("%s/status", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	status := &srv.StatusJSON{}
	if err := r.ToJSON(status); err != nil {
		return nil, err
	}
	return status, nil
}

// Tracks requests the track listing from the server
func (c *ApiClient) Tracks() ([]*srv.TrackJSON, error) {
	r, err := req.Get(fmt.Sprintf("%s/tracks", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	var tracks []*srv.TrackJSON
	if err := r.ToJSON(&tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// TrackGpx requests one track rendered as GPX
func (c *ApiClient) TrackGpx(index int) (string, error) {
	r, err := req.Get(fmt.Sprintf("%s/tracks/%d.gpx", c.ApiPrefix, index))
	if err != nil {
		return "", err
	}
	if r.Response().StatusCode != 200 {
		return "", errors.New(r.Response().Status)
	}
	return r.ToString()
}

// SetTime asks the server to set the device clock; an empty value means
// the server's current time
func (c *ApiClient) SetTime(value string) error {
	body := &srv.TimeJSON{Time: value}
	r, err := req.Post(fmt.Sprintf("%s/time", c.ApiPrefix), req.BodyJSON(body))
	if err != nil {
		return err
	}
	if r.Response().StatusCode != 200 {
		return errors.New(r.Response().Status)
	}
	return nil
}

// InternalLog requests the internal diagnostic log lines
func (c *ApiClient) InternalLog() ([]*srv.LogLineJSON, error) {
	r, err := req.Get(fmt.Sprintf("%s/log", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	var lines []*srv.LogLineJSON
	if err := r.ToJSON(&lines); err != nil {
		return nil, err
	}
	return lines, nil
}
