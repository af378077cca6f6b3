// Package docapi は上流のドキュメントAPI（サービス情報APIとドキュメントダウンロードAPI）のクライアントを提供する。
// クライアントは接続設定以外の状態を持たず、並行するリクエスト間で安全に共有できる。
package docapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/docdownload/internal/model"
)

const (
	// maxResponseSize は上流レスポンスとして読み取る最大バイト数。
	maxResponseSize = 1 << 20

	userAgent = "document-download-frontend/1.0"
)

// 上流呼び出しの種類。ログとメトリクスのラベルに使う。
const (
	OpGetService    = "get_service"
	OpCheckDocument = "check_document"
	OpAuthenticate  = "authenticate"
)

// Recorder は上流呼び出しの結果を記録するインターフェース。
// metrics.Collector が実装する。
type Recorder interface {
	RecordUpstreamCall(op string, statusCode int, duration time.Duration)
}

// ClientConfig は上流APIの接続設定。
type ClientConfig struct {
	// APIHost はサービス情報APIのベースURL。
	APIHost string
	// DocumentAPIHost はドキュメントダウンロードAPIのベースURL（内部向け）。
	DocumentAPIHost string
	// ClientID と ClientSecret はサービス情報APIのトークン発行に使う。
	ClientID     string
	ClientSecret string
}

// Client は上流APIのクライアント。
type Client struct {
	httpClient *http.Client
	config     ClientConfig
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// recorder がnilの場合は記録しない。
func NewClient(httpClient *http.Client, config ClientConfig, logger *slog.Logger, recorder Recorder) *Client {
	return &Client{
		httpClient: httpClient,
		config: ClientConfig{
			APIHost:         strings.TrimRight(config.APIHost, "/"),
			DocumentAPIHost: strings.TrimRight(config.DocumentAPIHost, "/"),
			ClientID:        config.ClientID,
			ClientSecret:    config.ClientSecret,
		},
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

type serviceResponse struct {
	Data struct {
		Name        string `json:"name"`
		ContactLink string `json:"contact_link"`
	} `json:"data"`
}

type checkResponse struct {
	Document *documentPayload `json:"document"`
}

type documentPayload struct {
	DirectFileURL  string `json:"direct_file_url"`
	SizeInBytes    int64  `json:"size_in_bytes"`
	FileExtension  string `json:"file_extension"`
	AvailableUntil string `json:"available_until"`
	ConfirmEmail   *bool  `json:"confirm_email"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type authenticateRequest struct {
	Key          string `json:"key"`
	EmailAddress string `json:"email_address"`
}

type authenticateResponse struct {
	SignedData    string `json:"signed_data"`
	DirectFileURL string `json:"direct_file_url"`
}

// GetService はサービス情報を取得する。
// 上流がHTTPエラーを返した場合は *model.ServiceLookupError を返し、
// 呼び出し元はそのステータスをそのまま応答する。
func (c *Client) GetService(ctx context.Context, serviceID uuid.UUID, onward http.Header) (*model.ServiceInfo, error) {
	reqURL := fmt.Sprintf("%s/service/%s", c.config.APIHost, serviceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create service request: %w", err)
	}

	token, err := c.serviceToken()
	if err != nil {
		return nil, fmt.Errorf("failed to sign service API token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := c.do(req, OpGetService, onward)
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		c.logger.Warn("service lookup returned error status",
			slog.String("service_id", serviceID.String()),
			slog.Int("http_status", status),
		)
		return nil, &model.ServiceLookupError{StatusCode: status}
	}

	var resp serviceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logUnexpectedShape(OpGetService, serviceID, uuid.Nil, status, err)
		return nil, &model.UpstreamError{Op: OpGetService, StatusCode: status, Err: err}
	}

	return &model.ServiceInfo{
		Name:        resp.Data.Name,
		ContactInfo: resp.Data.ContactLink,
	}, nil
}

// CheckDocument はアクセスキーでドキュメントのメタデータを取得する。
//
// 鍵が誤っている・復号できない場合は model.ErrNotFound を返す（存在の有無を区別しない）。
// 2xxだが document が含まれない場合は (nil, nil) を返し、呼び出し元は「利用不可」として扱う。
func (c *Client) CheckDocument(ctx context.Context, ref model.DocumentReference, onward http.Header) (*model.DocumentMetadata, error) {
	reqURL, err := url.Parse(fmt.Sprintf("%s/services/%s/documents/%s/check", c.config.DocumentAPIHost, ref.ServiceID, ref.DocumentID))
	if err != nil {
		return nil, fmt.Errorf("failed to build check URL: %w", err)
	}
	q := reqURL.Query()
	q.Set("key", ref.Key)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create check request: %w", err)
	}

	status, body, err := c.do(req, OpCheckDocument, onward)
	if err != nil {
		return nil, err
	}

	if status == http.StatusBadRequest {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && isKeyRejection(errResp.Error) {
			return nil, model.ErrNotFound
		}
	}

	if status < 200 || status > 299 {
		c.logUnexpectedStatus(OpCheckDocument, ref, status)
		return nil, &model.UpstreamError{Op: OpCheckDocument, StatusCode: status}
	}

	var resp checkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logUnexpectedShape(OpCheckDocument, ref.ServiceID, ref.DocumentID, status, err)
		return nil, &model.UpstreamError{Op: OpCheckDocument, StatusCode: status, Err: err}
	}

	if resp.Document == nil {
		return nil, nil
	}

	doc := resp.Document
	if doc.ConfirmEmail == nil {
		c.logger.Info("document metadata does not contain confirm_email key",
			slog.String("service_id", ref.ServiceID.String()),
			slog.String("document_id", ref.DocumentID.String()),
		)
	}

	return &model.DocumentMetadata{
		DirectFileURL:             doc.DirectFileURL,
		SizeInBytes:               doc.SizeInBytes,
		FileExtension:             doc.FileExtension,
		AvailableUntil:            doc.AvailableUntil,
		RequiresEmailConfirmation: doc.ConfirmEmail != nil && *doc.ConfirmEmail,
	}, nil
}

// Authenticate は受信者が入力したメールアドレスで上流に認証を依頼する。
//
// 429の場合は model.ErrRateLimited を返す。
// 400/403の場合はメールアドレスが一致しなかったものとして (nil, nil) を返す。
func (c *Client) Authenticate(ctx context.Context, ref model.DocumentReference, emailAddress string, onward http.Header) (*model.AuthorizationGrant, error) {
	reqURL := fmt.Sprintf("%s/services/%s/documents/%s/authenticate", c.config.DocumentAPIHost, ref.ServiceID, ref.DocumentID)

	payload, err := json.Marshal(authenticateRequest{Key: ref.Key, EmailAddress: emailAddress})
	if err != nil {
		return nil, fmt.Errorf("failed to encode authenticate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req, OpAuthenticate, onward)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusTooManyRequests:
		return nil, model.ErrRateLimited
	case status == http.StatusBadRequest || status == http.StatusForbidden:
		return nil, nil
	case status < 200 || status > 299:
		c.logUnexpectedStatus(OpAuthenticate, ref, status)
		return nil, &model.UpstreamError{Op: OpAuthenticate, StatusCode: status}
	}

	var resp authenticateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logUnexpectedShape(OpAuthenticate, ref.ServiceID, ref.DocumentID, status, err)
		return nil, &model.UpstreamError{Op: OpAuthenticate, StatusCode: status, Err: err}
	}

	fileURL, err := url.Parse(resp.DirectFileURL)
	switch {
	case err != nil:
	case resp.SignedData == "":
		err = errors.New("missing signed_data")
	case fileURL.Path == "":
		err = errors.New("direct_file_url has no path")
	}
	if err != nil {
		c.logUnexpectedShape(OpAuthenticate, ref.ServiceID, ref.DocumentID, status, err)
		return nil, &model.UpstreamError{Op: OpAuthenticate, StatusCode: status, Err: err}
	}

	return &model.AuthorizationGrant{
		SignedData: resp.SignedData,
		CookiePath: fileURL.Path,
	}, nil
}

// do はリクエストを送信し、ステータスコードとボディを返す。
// 期限切れによる失敗は model.ErrUpstreamTimeout に変換する。
func (c *Client) do(req *http.Request, op string, onward http.Header) (int, []byte, error) {
	for name, values := range onward {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(op, 0, time.Since(start))
		if isTimeout(err) {
			c.logger.Warn("upstream request timed out",
				slog.String("op", op),
				slog.String("host", req.URL.Host),
			)
			return 0, nil, fmt.Errorf("%s: %w", op, model.ErrUpstreamTimeout)
		}
		if errors.Is(err, context.Canceled) {
			c.logger.Debug("upstream request canceled",
				slog.String("op", op),
				slog.String("host", req.URL.Host),
			)
			return 0, nil, fmt.Errorf("%s: %w", op, context.Canceled)
		}
		c.logger.Error("upstream request failed",
			slog.String("op", op),
			slog.String("host", req.URL.Host),
			slog.String("error", redactURLError(err)),
		)
		return 0, nil, &model.UpstreamError{Op: op, Err: errors.New(redactURLError(err))}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.record(op, resp.StatusCode, time.Since(start))
	if err != nil {
		if isTimeout(err) {
			return 0, nil, fmt.Errorf("%s: %w", op, model.ErrUpstreamTimeout)
		}
		return 0, nil, &model.UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	return resp.StatusCode, body, nil
}

func (c *Client) record(op string, status int, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordUpstreamCall(op, status, d)
	}
}

func (c *Client) logUnexpectedStatus(op string, ref model.DocumentReference, status int) {
	c.logger.Error("unexpected upstream status",
		slog.String("op", op),
		slog.String("service_id", ref.ServiceID.String()),
		slog.String("document_id", ref.DocumentID.String()),
		slog.Int("http_status", status),
	)
}

func (c *Client) logUnexpectedShape(op string, serviceID, documentID uuid.UUID, status int, err error) {
	attrs := []any{
		slog.String("op", op),
		slog.String("service_id", serviceID.String()),
		slog.Int("http_status", status),
		slog.String("error", err.Error()),
	}
	if documentID != uuid.Nil {
		attrs = append(attrs, slog.String("document_id", documentID.String()))
	}
	c.logger.Error("unexpected upstream response body", attrs...)
}

// isKeyRejection は400応答のエラーメッセージが鍵の不一致・復号失敗を示すかを判定する。
// 鍵が欠けている・デコードできない場合は "decryption key" を含み、鍵が誤っている場合は "Forbidden" になる。
func isKeyRejection(msg string) bool {
	return strings.Contains(msg, "decryption key") || strings.Contains(msg, "Forbidden")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redactURLError はURLエラーからクエリ文字列（アクセスキーを含む）を取り除いた文字列を返す。
func redactURLError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		u, parseErr := url.Parse(urlErr.URL)
		if parseErr == nil {
			u.RawQuery = ""
			return fmt.Sprintf("%s %q: %v", urlErr.Op, u.String(), urlErr.Err)
		}
		return fmt.Sprintf("%s: %v", urlErr.Op, urlErr.Err)
	}
	return err.Error()
}
