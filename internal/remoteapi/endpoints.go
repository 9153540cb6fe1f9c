package remoteapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/draw-health/gateway/internal/cos"
)

// UploadResult is the Upload call's parsed response body (spec.md §6
// "Upload").
type UploadResult struct {
	TaskID string `json:"task_id"`
}

// Upload posts the deidentified zip archive plus its checksum to
// base_url+upload_endpoint (spec.md §4.5 step 3).
func (c *Client) Upload(zipPath string, zipBytes []byte, sha256Hex string) (*UploadResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", zipPath)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(zipBytes); err != nil {
		return nil, err
	}
	if err := mw.WriteField("checksum", sha256Hex); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.BaseURL + cfg.UploadEndpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(mw.FormDataContentType())
	req.SetBody(body.Bytes())

	if err := c.Do(req, resp, 30*time.Second); err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, cos.NewError(cos.NetworkTransient, "upload", statusError(resp.StatusCode()))
	}
	var ur UploadResult
	if err := json.Unmarshal(resp.Body(), &ur); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "upload", err, "decode upload response")
	}
	return &ur, nil
}

// StatusResult is the Status call's parsed response body (spec.md §6
// "Status"). Observed values include "SEGMENTATION COMPLETED",
// "Delivered to Client", "Transfer Completed", "RTStructure Received".
type StatusResult struct {
	Status string `json:"status"`
}

// Status polls base_url+status_endpoint with {task_id} substituted
// (spec.md §4.7 step 1).
func (c *Client) Status(taskID string) (*StatusResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}
	url := cfg.BaseURL + strings.ReplaceAll(cfg.StatusEndpoint, "{task_id}", taskID)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.Do(req, resp, 30*time.Second); err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, cos.NewError(cos.NetworkTransient, "status", statusError(resp.StatusCode()))
	}
	var sr StatusResult
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "status", err, "decode status response")
	}
	return &sr, nil
}

// DownloadResult carries the downloaded RT Structure bytes plus the
// server-supplied checksum header, if any (spec.md §4.7 step 2a).
type DownloadResult struct {
	Body         []byte
	FileChecksum string // X-File-Checksum header, SHA-256 hex; may be empty
}

// Download fetches base_url+download_endpoint (spec.md §4.7 step 2a).
func (c *Client) Download(taskID string) (*DownloadResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}
	url := cfg.BaseURL + strings.ReplaceAll(cfg.DownloadEndpoint, "{task_id}", taskID)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.Do(req, resp, 300*time.Second); err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, cos.NewError(cos.NetworkTransient, "download", statusError(resp.StatusCode()))
	}
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return &DownloadResult{
		Body:         body,
		FileChecksum: string(resp.Header.Peek("X-File-Checksum")),
	}, nil
}

// notifyConfirmation is the literal substring the server must echo back
// for a notify call to count as successful (spec.md §4.7 step g).
const notifyConfirmation = "Transfer confirmation received, files cleaned up"

// Notify posts the receipt confirmation (spec.md §4.7 step g). Returns nil
// only if the response body contains the literal confirmation substring.
func (c *Client) Notify(taskID, status string, timestamp time.Time) error {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{
		"task_id":   taskID,
		"status":    status,
		"timestamp": timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.BaseURL + cfg.NotifyEndpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := c.Do(req, resp, 30*time.Second); err != nil {
		return err
	}
	if !strings.Contains(string(resp.Body()), notifyConfirmation) {
		return cos.NewError(cos.NetworkTransient, "notify", statusError(resp.StatusCode()))
	}
	return nil
}

// HealthResult is the parsed response from GET base_url+api/health
// (spec.md §6 "Health").
type HealthResult struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

// Health checks the remote service without requiring a bearer token - the
// health endpoint is meant to work even during an auth outage, so this
// bypasses Client.Do's token machinery.
func (c *Client) Health() (*HealthResult, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.BaseURL + "api/health")
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.http.DoTimeout(req, resp, 30*time.Second); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "health", err, "health check")
	}
	var hr HealthResult
	if err := json.Unmarshal(resp.Body(), &hr); err != nil {
		return nil, cos.Wrap(cos.NetworkTransient, "health", err, "decode health response")
	}
	return &hr, nil
}
