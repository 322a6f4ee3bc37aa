// Package lms implements the wire client for the Moodle-compatible LMS
// web-service protocol. Every operation maps to a single
// LMS function, transported as a form-encoded or multipart POST with
// wstoken/wsfunction/moodlewsrestformat=json parameters.
//
// Structurally this follows an LLMService shape: a single http.Client
// with a fixed timeout, JSON marshal/unmarshal around a POST, and error
// classification of the response body rather than trusting the HTTP
// status code alone.
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorKind classifies an LMS call failure.
type ErrorKind string

const (
	Transient     ErrorKind = "transient"
	AuthInvalid   ErrorKind = "auth_invalid"
	Authz         ErrorKind = "authz"
	PayloadReject ErrorKind = "payload_reject"
	Unknown       ErrorKind = "unknown"
)

// CallError wraps a classified LMS failure.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) Error() string { return fmt.Sprintf("lms: %s: %s", e.Kind, e.Message) }

// Client calls the LMS REST web-service endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL (e.g. "https://lms.example.edu")
// with a per-call timeout; callers should pass a 60s deadline.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

const restEndpoint = "/webservice/rest/server.php"
const uploadEndpoint = "/webservice/upload.php"
const tokenEndpoint = "/login/token.php"

// ExchangeToken calls the LMS token endpoint to exchange a username and
// password for a web-service token, performed on behalf of C5's student
// login.
func (c *Client) ExchangeToken(ctx context.Context, username, password, service string) (string, error) {
	form := url.Values{
		"username": {username},
		"password": {password},
		"service":  {service},
	}
	body, err := c.postForm(ctx, c.baseURL+tokenEndpoint, form)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Token     string `json:"token"`
		Error     string `json:"error"`
		ErrorCode string `json:"errorcode"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &CallError{Kind: Unknown, Message: "malformed token response"}
	}
	if parsed.Error != "" || parsed.ErrorCode != "" {
		return "", classifyErrorCode(parsed.ErrorCode, parsed.Error)
	}
	if parsed.Token == "" {
		return "", &CallError{Kind: Unknown, Message: "token endpoint returned no token"}
	}
	return parsed.Token, nil
}

// SiteInfo resolves (user_id, username) from a token via
// core_webservice_get_site_info.
func (c *Client) SiteInfo(ctx context.Context, token string) (userID, username string, err error) {
	body, err := c.call(ctx, token, "core_webservice_get_site_info", nil)
	if err != nil {
		return "", "", err
	}
	var parsed struct {
		UserID   int    `json:"userid"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", &CallError{Kind: Unknown, Message: "malformed site_info response"}
	}
	return fmt.Sprintf("%d", parsed.UserID), parsed.Username, nil
}

// UserByField resolves a user record for admin flows via
// core_user_get_users_by_field.
func (c *Client) UserByField(ctx context.Context, adminToken, field, value string) (userID, username string, err error) {
	body, err := c.call(ctx, adminToken, "core_user_get_users_by_field", url.Values{
		"field":     {field},
		"values[0]": {value},
	})
	if err != nil {
		return "", "", err
	}
	var parsed []struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", &CallError{Kind: Unknown, Message: "malformed users_by_field response"}
	}
	if len(parsed) == 0 {
		return "", "", &CallError{Kind: Unknown, Message: "no user found for field " + field}
	}
	return fmt.Sprintf("%d", parsed[0].ID), parsed[0].Username, nil
}

// UploadFile uploads bytes to the user's draft file area via
// webservice/upload.php, returning the resulting draft item_id.
func (c *Client) UploadFile(ctx context.Context, token string, data []byte, filename string) (itemID string, err error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if werr := writer.WriteField("token", token); werr != nil {
		return "", &CallError{Kind: Unknown, Message: "build upload request: " + werr.Error()}
	}
	part, werr := writer.CreateFormFile("file_1", filename)
	if werr != nil {
		return "", &CallError{Kind: Unknown, Message: "build upload request: " + werr.Error()}
	}
	if _, werr := part.Write(data); werr != nil {
		return "", &CallError{Kind: Unknown, Message: "build upload request: " + werr.Error()}
	}
	if werr := writer.Close(); werr != nil {
		return "", &CallError{Kind: Unknown, Message: "build upload request: " + werr.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadEndpoint, body)
	if err != nil {
		return "", &CallError{Kind: Unknown, Message: "create upload request: " + err.Error()}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transientOrUnknown(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &CallError{Kind: Transient, Message: "read upload response: " + err.Error()}
	}

	var parsed []struct {
		ItemID    int    `json:"itemid"`
		Error     string `json:"error"`
		ErrorCode string `json:"errorcode"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		var obj struct {
			Error     string `json:"error"`
			ErrorCode string `json:"errorcode"`
		}
		if jerr := json.Unmarshal(respBody, &obj); jerr == nil && (obj.Error != "" || obj.ErrorCode != "") {
			return "", classifyErrorCode(obj.ErrorCode, obj.Error)
		}
		return "", &CallError{Kind: Unknown, Message: "malformed upload response"}
	}
	if len(parsed) == 0 {
		return "", &CallError{Kind: Unknown, Message: "upload response contained no files"}
	}
	if parsed[0].Error != "" || parsed[0].ErrorCode != "" {
		return "", classifyErrorCode(parsed[0].ErrorCode, parsed[0].Error)
	}
	return fmt.Sprintf("%d", parsed[0].ItemID), nil
}

// SaveSubmission attaches a draft file item to an assignment via
// mod_assign_save_submission.
func (c *Client) SaveSubmission(ctx context.Context, token, assignmentID, draftItemID string) error {
	_, err := c.call(ctx, token, "mod_assign_save_submission", url.Values{
		"assignmentid":                  {assignmentID},
		"plugindata[files_filemanager]": {draftItemID},
	})
	return err
}

// SubmitForGrading finalises a submission via mod_assign_submit_for_grading,
// returning the resulting submission id.
func (c *Client) SubmitForGrading(ctx context.Context, token, assignmentID string) (submissionID string, err error) {
	_, err = c.call(ctx, token, "mod_assign_submit_for_grading", url.Values{
		"assignmentid":       {assignmentID},
		"acceptsubmissionstatement": {"1"},
	})
	if err != nil {
		return "", err
	}
	// mod_assign_submit_for_grading returns no identifier of its own; the
	// assignment+user pair is the durable reference, so this method
	// composes the submission_id from the assignment id and a short
	// prefix of the token.
	return assignmentID + ":" + tokenFingerprint(token), nil
}

// tokenFingerprint returns a short, non-sensitive slice of token safe to
// embed in a composed identifier, without assuming a minimum token length.
func tokenFingerprint(token string) string {
	const n = 8
	if len(token) < n {
		return token
	}
	return token[:n]
}

// call performs a standard form-encoded REST call and returns the raw
// JSON body after checking for an LMS-level error object.
func (c *Client) call(ctx context.Context, token, wsfunction string, extra url.Values) ([]byte, error) {
	form := url.Values{
		"wstoken":            {token},
		"wsfunction":         {wsfunction},
		"moodlewsrestformat": {"json"},
	}
	for k, v := range extra {
		form[k] = v
	}

	body, err := c.postForm(ctx, c.baseURL+restEndpoint, form)
	if err != nil {
		return nil, err
	}

	var exceptionCheck struct {
		Exception string `json:"exception"`
		ErrorCode string `json:"errorcode"`
		Message   string `json:"message"`
	}
	if json.Unmarshal(body, &exceptionCheck) == nil && (exceptionCheck.Exception != "" || exceptionCheck.ErrorCode != "") {
		return nil, classifyErrorCode(exceptionCheck.ErrorCode, exceptionCheck.Message)
	}
	return body, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &CallError{Kind: Unknown, Message: "create request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transientOrUnknown(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CallError{Kind: Transient, Message: "read response: " + err.Error()}
	}
	// HTTP 200 is not sufficient to indicate success — the
	// caller inspects the JSON body for exception/errorcode. A 5xx status
	// here is classified as transient infrastructure trouble, a 4xx status
	// as Unknown.
	if resp.StatusCode >= 500 {
		return nil, &CallError{Kind: Transient, Message: fmt.Sprintf("LMS returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &CallError{Kind: Unknown, Message: fmt.Sprintf("LMS returned %d: %s", resp.StatusCode, string(respBody))}
	}
	return respBody, nil
}

func transientOrUnknown(err error) error {
	if err, ok := err.(interface{ Timeout() bool }); ok && err.Timeout() {
		return &CallError{Kind: Transient, Message: "request timed out"}
	}
	return &CallError{Kind: Transient, Message: "network error: " + err.Error()}
}

// classifyErrorCode maps an LMS errorcode/message pair to a CallError.
func classifyErrorCode(code, message string) *CallError {
	switch code {
	case "invalidtoken", "tokennotfound", "invalidtokenuser":
		return &CallError{Kind: AuthInvalid, Message: message}
	case "nopermissions", "nopermission":
		return &CallError{Kind: Authz, Message: message}
	case "invalidfiletype", "filetypesnotallowed", "maxbytesexceeded", "userquotalimit", "fileexceedsmaxsize":
		return &CallError{Kind: PayloadReject, Message: message}
	case "":
		return &CallError{Kind: Unknown, Message: message}
	default:
		return &CallError{Kind: Unknown, Message: fmt.Sprintf("%s: %s", code, message)}
	}
}
