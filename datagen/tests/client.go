package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"datagen_platform/datagen"
	"datagen_platform/datagen/config"
	"datagen_platform/datagen/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var ErrUnauthorized = errors.New("unauthorized")

type client struct {
	api    chi.Router
	apiKey string
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.apiKey != "" {
		return r.Header("X-API-Key", c.apiKey)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

func (c *client) createRun(cfg config.DatagenConfig) (map[string]string, error) {
	var res map[string]string
	err := c.Post("/runs/create").Json(cfg).Do(&res)
	return res, err
}

func (c *client) listRuns() ([]services.RunInfo, error) {
	var res []services.RunInfo
	err := c.Get("/runs/list").Do(&res)
	return res, err
}

func (c *client) startRun(runId string) error {
	return c.Post(fmt.Sprintf("/runs/%v/start", runId)).Do(nil)
}

func (c *client) stopRun(runId string) error {
	return c.Post(fmt.Sprintf("/runs/%v/stop", runId)).Do(nil)
}

func (c *client) deleteRun(runId string) error {
	return c.Delete(fmt.Sprintf("/runs/%v", runId)).Do(nil)
}

func (c *client) runStatus(runId string) (services.StatusResponse, error) {
	var res services.StatusResponse
	err := c.Get(fmt.Sprintf("/runs/%v/status", runId)).Do(&res)
	return res, err
}

func (c *client) runConfig(runId string) (config.DatagenConfig, error) {
	var res config.DatagenConfig
	err := c.Get(fmt.Sprintf("/runs/%v/config", runId)).Do(&res)
	return res, err
}

func (c *client) runReport(runId string) (datagen.Report, error) {
	var res datagen.Report
	err := c.Get(fmt.Sprintf("/runs/%v/report", runId)).Do(&res)
	return res, err
}

func (c *client) labelCounts(runId string) (services.LabelCounts, error) {
	var res services.LabelCounts
	err := c.Get(fmt.Sprintf("/runs/%v/counts", runId)).Do(&res)
	return res, err
}

func (c *client) download(runId string) (io.Reader, error) {
	endpoint := fmt.Sprintf("/runs/%v/download", runId)
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("X-API-Key", c.apiKey)
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	dst := new(bytes.Buffer)

	if _, err := io.Copy(dst, w.Body); err != nil {
		return nil, err
	}

	return dst, nil
}

func (c *client) jobUpdateStatus(token, status, message string) error {
	body := map[string]string{"status": status, "message": message}
	return c.Post("/runs/update-status").Auth(token).Json(body).Do(nil)
}

func (c *client) jobLog(token, level, message string) error {
	body := map[string]string{"level": level, "message": message}
	return c.Post("/runs/log").Auth(token).Json(body).Do(nil)
}

func (c *client) pushReview(runId, vocab string) (map[string]interface{}, error) {
	body := map[string]string{"vocab": vocab}
	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/runs/%v/review", runId)).Json(body).Do(&res)
	return res, err
}

func (c *client) importReviewed(runId, vocab string) (map[string]interface{}, error) {
	body := map[string]string{"vocab": vocab}
	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/runs/%v/review/import", runId)).Json(body).Do(&res)
	return res, err
}
