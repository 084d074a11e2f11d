package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// apiError Storage API 错误响应
type apiError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// Client 医疗文档对象存储客户端（Supabase Storage REST）
type Client struct {
	httpClient *resty.Client
	baseURL    string
	bucket     string
	logger     *zap.Logger
}

// NewClient baseURL 形如 https://<project>.supabase.co/storage/v1
func NewClient(baseURL, serviceKey, bucket string, logger *zap.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second). // 文档可能较大
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetAuthToken(serviceKey).
		SetHeader("apikey", serviceKey)

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		bucket:     bucket,
		logger:     logger,
	}
}

// Bucket 桶名
func (c *Client) Bucket() string { return c.bucket }

// BlobPath <user_id>/<uuid><ext>
func BlobPath(userID, fileName string) string {
	return userID + "/" + uuid.NewString() + strings.ToLower(path.Ext(fileName))
}

func (c *Client) objectPath(prefix, objectPath string) string {
	segments := strings.Split(strings.Trim(objectPath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return prefix + "/" + url.PathEscape(c.bucket) + "/" + strings.Join(segments, "/")
}

// Upload 上传对象，已存在时返回错误
func (c *Client) Upload(ctx context.Context, objectPath, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(data).
		Post(c.objectPath("/object", objectPath))
	if err != nil {
		c.logger.Error("Storage upload failed", zap.String("path", objectPath), zap.Error(err))
		return fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	c.logger.Info("Uploaded document",
		zap.String("bucket", c.bucket),
		zap.String("path", objectPath),
		zap.Int("size", len(data)),
	)
	return nil
}

// Download 下载对象内容及其 Content-Type
func (c *Client) Download(ctx context.Context, objectPath string) ([]byte, string, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.objectPath("/object/authenticated", objectPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", objectPath, err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", objectPath, err)
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// Remove 删除对象
func (c *Client) Remove(ctx context.Context, objectPath string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Delete(c.objectPath("/object", objectPath))
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", objectPath, err)
	}
	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("failed to remove %s: %w", objectPath, err)
	}
	c.logger.Info("Removed document", zap.String("bucket", c.bucket), zap.String("path", objectPath))
	return nil
}

// SignedURL 生成限时下载链接
func (c *Client) SignedURL(ctx context.Context, objectPath string, expiresIn time.Duration) (string, error) {
	var out signResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(signRequest{ExpiresIn: int(expiresIn / time.Second)}).
		SetResult(&out).
		Post(c.objectPath("/object/sign", objectPath))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", objectPath, err)
	}
	if err := checkResponse(resp); err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", objectPath, err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("failed to sign %s: empty signed url", objectPath)
	}
	// signedURL 相对 /storage/v1
	return c.baseURL + "/" + strings.TrimLeft(out.SignedURL, "/"), nil
}

func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var e apiError
	if jsonErr := json.Unmarshal(resp.Body(), &e); jsonErr == nil && (e.StatusCode == "404" || e.Error == "not_found") {
		return ErrObjectNotFound
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrObjectNotFound
	}
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(string(resp.Body()))
	}
	return fmt.Errorf("storage API error: %s (status: %d)", msg, resp.StatusCode())
}
