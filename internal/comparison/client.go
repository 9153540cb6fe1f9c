// Package comparison wires the spatial-overlap comparison engine's HTTP
// surface (SPEC_FULL.md SUPPLEMENTED FEATURES, resolving spec.md §1's
// dangling "specified in §6" cross-reference) as a second remote
// collaborator alongside internal/remoteapi. Only the interface is
// modeled - uploading a reference RT Structure Set, requesting metric
// computation, and polling a bulk-async task - never the metric formulas
// themselves, which spec.md names as a Non-goal.
//
// Grounded on internal/remoteapi.Client's shape: the same fasthttp
// transport, the same status-code-to-cos.Error mapping, the same
// base_url+endpoint templating pulled from catalog configuration.
package comparison

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
)

// Client talks to the comparison engine's HTTP surface. Unlike
// remoteapi.Client it carries no bearer-token lifecycle: the original
// collaborator authenticates via an operator's browser session, not a
// service account, so the gateway process reaches it unauthenticated on a
// private network the same way it reaches a local DICOM peer.
type Client struct {
	http  *fasthttp.Client
	store *catalog.Store
}

func NewClient(store *catalog.Store) *Client {
	return &Client{http: &fasthttp.Client{}, store: store}
}

// UploadResult is the parsed response of POST {base}{comparison_upload_endpoint}.
type UploadResult struct {
	ReferenceUploadID string `json:"reference_upload_id"`
}

// Upload posts a reference RT Structure Set file for later comparison
// against an auto-segmented import.
func (c *Client) Upload(seriesUID string, rtStructBytes []byte) (*UploadResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}
	if cfg.ComparisonBaseURL == "" {
		return nil, cos.NewError(cos.ConfigurationMissing, "comparison_base_url", nil)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "reference_rtstruct.dcm")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(rtStructBytes); err != nil {
		return nil, err
	}
	if err := mw.WriteField("series_uid", seriesUID); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.ComparisonBaseURL + cfg.ComparisonUploadEndpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(mw.FormDataContentType())
	req.SetBody(body.Bytes())

	if err := c.http.DoTimeout(req, resp, 30*time.Second); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, seriesUID, err, "upload reference rtstruct")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, cos.NewError(cos.NetworkTransient, "comparison upload", statusError(resp.StatusCode()))
	}
	var ur UploadResult
	if err := json.Unmarshal(resp.Body(), &ur); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "comparison upload", err, "decode upload response")
	}
	return &ur, nil
}

// ComputeResult is the parsed response of a synchronous compute call.
type ComputeResult struct {
	Metrics map[string]float64 `json:"metrics"`
}

// Compute requests synchronous metric computation for one already-registered
// comparison.
func (c *Client) Compute(comparisonID string) (*ComputeResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}
	if cfg.ComparisonBaseURL == "" {
		return nil, cos.NewError(cos.ConfigurationMissing, "comparison_base_url", nil)
	}
	url := cfg.ComparisonBaseURL + strings.ReplaceAll(cfg.ComparisonComputeEndpoint, "{comparison_id}", comparisonID)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)

	if err := c.http.DoTimeout(req, resp, 60*time.Second); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, comparisonID, err, "compute comparison metrics")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, cos.NewError(cos.NetworkTransient, "comparison compute", statusError(resp.StatusCode()))
	}
	var cres ComputeResult
	if err := json.Unmarshal(resp.Body(), &cres); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "comparison compute", err, "decode compute response")
	}
	return &cres, nil
}

// BulkComputeAsyncResult is the parsed response of the bulk-async trigger.
type BulkComputeAsyncResult struct {
	TaskID string `json:"task_id"`
}

// BulkComputeAsync fans the compute step out over every comparison id given,
// mirroring the way spec.md §4.7 polls a remote task id to completion.
func (c *Client) BulkComputeAsync(comparisonIDs []string) (*BulkComputeAsyncResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}
	if cfg.ComparisonBaseURL == "" {
		return nil, cos.NewError(cos.ConfigurationMissing, "comparison_base_url", nil)
	}
	payload, err := json.Marshal(map[string][]string{"comparison_ids": comparisonIDs})
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.ComparisonBaseURL + cfg.ComparisonBulkAsyncEndpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := c.http.DoTimeout(req, resp, 30*time.Second); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "bulk_compute", err, "trigger bulk compute")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, cos.NewError(cos.NetworkTransient, "comparison bulk compute", statusError(resp.StatusCode()))
	}
	var br BulkComputeAsyncResult
	if err := json.Unmarshal(resp.Body(), &br); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "comparison bulk compute", err, "decode bulk compute response")
	}
	return &br, nil
}

// BulkComputeStatusResult is the parsed response of the bulk-async status
// poll (spec.md §4.7's status-polling shape, reused for this collaborator).
type BulkComputeStatusResult struct {
	Status    string   `json:"status"`
	Completed []string `json:"completed_comparison_ids"`
}

func (c *Client) BulkComputeStatus(taskID string) (*BulkComputeStatusResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}
	if cfg.ComparisonBaseURL == "" {
		return nil, cos.NewError(cos.ConfigurationMissing, "comparison_base_url", nil)
	}
	url := cfg.ComparisonBaseURL + strings.ReplaceAll(cfg.ComparisonBulkStatusEndpoint, "{task_id}", taskID)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.http.DoTimeout(req, resp, 30*time.Second); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, taskID, err, "poll bulk compute status")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, cos.NewError(cos.NetworkTransient, "comparison bulk compute status", statusError(resp.StatusCode()))
	}
	var sr BulkComputeStatusResult
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "comparison bulk compute status", err, "decode status response")
	}
	return &sr, nil
}

func statusError(code int) error {
	return errors.Errorf("unexpected HTTP status %d %s", code, fasthttp.StatusMessage(code))
}
