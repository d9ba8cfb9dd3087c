package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
)

// Upload describes one image attachment. Exactly one of ToUserID (direct)
// or GroupID (group) is set.
type Upload struct {
	FromUserID  int64
	ToUserID    int64
	GroupID     int64
	Filename    string
	ContentType string
	Content     io.Reader
}

func (u Upload) kind() string {
	if u.GroupID != 0 {
		return "group"
	}
	return "direct"
}

// UploadMedia posts the attachment as multipart/form-data and returns the
// media ID the backend assigned.
func (c *Client) UploadMedia(ctx context.Context, up Upload) (int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"kind", up.kind()},
		{"from_user_id", strconv.FormatInt(up.FromUserID, 10)},
	}
	if up.GroupID != 0 {
		fields = append(fields, [2]string{"group_id", strconv.FormatInt(up.GroupID, 10)})
	} else {
		fields = append(fields, [2]string{"to_user_id", strconv.FormatInt(up.ToUserID, 10)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return 0, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(up.Filename)))
	if up.ContentType != "" {
		h.Set("Content-Type", up.ContentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return 0, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return 0, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("close multipart: %w", err)
	}

	var resp sentResponse
	err = c.do(ctx, http.MethodPost, c.URL("/plain_media/upload", nil), mw.FormDataContentType(), &buf, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// MediaURL is where the backend serves media id.
func (c *Client) MediaURL(id int64) string {
	return c.URL("/plain_media/get", url.Values{"id": {strconv.FormatInt(id, 10)}})
}

// FetchMedia streams media id into w.
func (c *Client) FetchMedia(ctx context.Context, id int64, w io.Writer) error {
	return c.do(ctx, http.MethodGet, c.MediaURL(id), "", nil, w)
}
