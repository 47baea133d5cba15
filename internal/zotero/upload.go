package zotero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/florianilch/zotcon/internal/auth"
	"github.com/florianilch/zotcon/internal/common"
	"github.com/florianilch/zotcon/internal/formcodec"
	"github.com/florianilch/zotcon/internal/transport"
)

// Attachment is the file content of an existing attachment item.
type Attachment struct {
	Data     []byte `json:"data" validate:"required"`
	Filename string `json:"filename"`
	// Key is the attachment item key, ASCII letters and digits only.
	Key      string `json:"key" validate:"required,alphanum"`
	MD5      string `json:"md5" validate:"required"`
	MimeType string `json:"mimeType" validate:"required"`
	Charset  string `json:"charset,omitempty"`
}

// UploadAuthorization is the server's answer to an upload request.
type UploadAuthorization struct {
	Exists      bool
	UploadKey   string
	URL         string
	ContentType string
	Prefix      string
	Suffix      string
}

// UploadAttachment stores a's content on the server in three steps: request
// an upload authorization, send the framed bytes to the issued storage URL,
// then register the upload. When the server already has the content nothing
// is sent. a is returned unchanged on success.
func (c *Client) UploadAttachment(ctx context.Context, a *Attachment) (*Attachment, error) {
	if err := c.validateAttachment(a); err != nil {
		return nil, err
	}

	creds := c.creds.GetCredentials(ctx)
	if creds == nil {
		return nil, fmt.Errorf("%w: no authorization credentials available", common.ErrNotAuthorized)
	}

	fileURL, err := c.fileURL(creds.UserID, a.Key)
	if err != nil {
		return nil, fmt.Errorf("building file URL: %w", err)
	}

	ua, err := c.requestUpload(ctx, fileURL, a, creds)
	if err != nil {
		return nil, err
	}
	if ua.Exists {
		slog.DebugContext(ctx, "attachment exists, no upload necessary", "key", a.Key)
		return a, nil
	}
	slog.DebugContext(ctx, "upload authorized", "key", a.Key)

	resp, err := c.transport.Request(ctx, http.MethodPost, ua.URL, transport.Options{
		Body: frame(ua.Prefix, a.Data, ua.Suffix),
		Headers: map[string]string{
			auth.HeaderAPIKey:     creds.TokenSecret,
			auth.HeaderAPIVersion: auth.APIVersion,
			"Content-Type":        ua.ContentType,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "uploading attachment failed", transport.FailureAttrs(err, creds.TokenSecret)...)
		return nil, err
	}
	slog.DebugContext(ctx, "attachment uploaded", "key", a.Key, "status", resp.Status)

	// Registration is best effort: any status completes the upload.
	resp, err = c.transport.Request(ctx, http.MethodPost, fileURL, transport.Options{
		Body:            []byte(formcodec.Encode(formcodec.Fields{}.Add("upload", ua.UploadKey))),
		Headers:         formHeaders(creds.TokenSecret),
		AcceptAnyStatus: true,
	})
	if err != nil {
		slog.ErrorContext(ctx, "registering upload failed", transport.FailureAttrs(err, creds.TokenSecret)...)
		return nil, err
	}
	slog.DebugContext(ctx, "upload registered", "key", a.Key, "status", resp.Status)

	return a, nil
}

// validateAttachment reports missing properties before an invalid key.
func (c *Client) validateAttachment(a *Attachment) error {
	if a == nil {
		return &common.ValidationError{Reason: "attachment is required"}
	}

	err := c.validate.Struct(a)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &common.ValidationError{
				Field:  fe.Field(),
				Reason: fmt.Sprintf("required property %q not defined", fe.Field()),
			}
		}
	}
	return &common.ValidationError{Field: verrs[0].Field(), Reason: "attachment key is invalid"}
}

// requestUpload asks for an upload authorization for a.
func (c *Client) requestUpload(ctx context.Context, fileURL string, a *Attachment, creds *auth.Credentials) (UploadAuthorization, error) {
	fields := formcodec.Fields{}.
		Add("md5", a.MD5).
		Add("filename", a.Filename).
		Add("filesize", len(a.Data)).
		Add("mtime", c.clock.Now().UnixMilli()).
		Add("contentType", a.MimeType)
	if a.Charset != "" {
		fields = fields.Add("charset", a.Charset)
	}

	resp, err := c.transport.Request(ctx, http.MethodPost, fileURL, transport.Options{
		Body:    []byte(formcodec.Encode(fields)),
		Headers: formHeaders(creds.TokenSecret),
	})
	if err != nil {
		slog.ErrorContext(ctx, "requesting upload authorization failed", transport.FailureAttrs(err, creds.TokenSecret)...)
		return UploadAuthorization{}, err
	}

	ua, err := parseUploadAuthorization(resp.ResponseText)
	if err != nil {
		slog.ErrorContext(ctx, "invalid upload authorization", "response", common.Redact(resp.ResponseText, creds.TokenSecret))
		return UploadAuthorization{}, err
	}
	return ua, nil
}

// parseUploadAuthorization accepts "exists" as true or 1. Without it, the
// storage URL and upload key are required.
func parseUploadAuthorization(text string) (UploadAuthorization, error) {
	if !gjson.Valid(text) {
		return UploadAuthorization{}, common.ErrServerResponse
	}
	r := gjson.Parse(text)
	if !r.IsObject() {
		return UploadAuthorization{}, common.ErrServerResponse
	}

	ua := UploadAuthorization{
		Exists:      r.Get("exists").Bool(),
		UploadKey:   r.Get("uploadKey").String(),
		URL:         r.Get("url").String(),
		ContentType: r.Get("contentType").String(),
		Prefix:      r.Get("prefix").String(),
		Suffix:      r.Get("suffix").String(),
	}
	if !ua.Exists && (ua.URL == "" || ua.UploadKey == "") {
		return UploadAuthorization{}, common.ErrServerResponse
	}
	return ua, nil
}

// frame returns prefix, data and suffix as one contiguous buffer.
func frame(prefix string, data []byte, suffix string) []byte {
	buf := make([]byte, len(prefix)+len(data)+len(suffix))
	n := copy(buf, prefix)
	n += copy(buf[n:], data)
	copy(buf[n:], suffix)
	return buf
}
