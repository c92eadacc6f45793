package ocsapi

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const propfindBody = `<?xml version="1.0"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:getetag/>
    <d:getcontentlength/>
    <d:getlastmodified/>
    <d:resourcetype/>
  </d:prop>
</d:propfind>`

// DavEntry is one resource in a dav folder listing.
type DavEntry struct {
	// Path is relative to the listed folder, using forward slashes.
	Path         string
	ETag         string
	Size         int64
	LastModified time.Time
	IsDir        bool
}

type multistatus struct {
	XMLName   xml.Name      `xml:"multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href     string   `xml:"href"`
	Propstat propstat `xml:"propstat"`
}

type propstat struct {
	Prop   davProp `xml:"prop"`
	Status string  `xml:"status"`
}

type davProp struct {
	ETag          string       `xml:"getetag"`
	ContentLength int64        `xml:"getcontentlength"`
	LastModified  string       `xml:"getlastmodified"`
	ResourceType  resourceType `xml:"resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

// davURL builds the request path for a remote path below the dav root.
func (c *Client) davURL(remotePath string) string {
	p := path.Join("/", c.davPath, remotePath)
	if strings.HasSuffix(remotePath, "/") && p != "/" {
		p += "/"
	}
	return p
}

// ListFolder lists the immediate children of folder (Depth 1).
func (c *Client) ListFolder(ctx context.Context, folder string) ([]*DavEntry, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Depth", "1").
		SetHeader("Content-Type", "application/xml; charset=utf-8").
		SetBody(propfindBody).
		Send("PROPFIND", c.davURL(folder))
	if err := handleAPIError(res, err, "propfind "+folder); err != nil {
		return nil, err
	}

	body, err := res.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("read propfind response: %w", err)
	}

	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("parse propfind response: %w", err)
	}

	base := c.davURL(folder)
	var entries []*DavEntry
	for _, r := range ms.Responses {
		rel := relativeHref(r.Href, base)
		if rel == "" {
			// the folder itself
			continue
		}
		if !strings.Contains(r.Propstat.Status, "200") {
			continue
		}

		entry := &DavEntry{
			Path:  rel,
			ETag:  strings.Trim(r.Propstat.Prop.ETag, `"`),
			Size:  r.Propstat.Prop.ContentLength,
			IsDir: r.Propstat.Prop.ResourceType.Collection != nil,
		}
		if lm := r.Propstat.Prop.LastModified; lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				entry.LastModified = t
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FolderETag fetches just the etag of folder (Depth 0). The engine uses
// it to detect server-side changes during a run.
func (c *Client) FolderETag(ctx context.Context, folder string) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Depth", "0").
		SetHeader("Content-Type", "application/xml; charset=utf-8").
		SetBody(propfindBody).
		Send("PROPFIND", c.davURL(folder))
	if err := handleAPIError(res, err, "propfind etag "+folder); err != nil {
		return "", err
	}

	body, err := res.ToBytes()
	if err != nil {
		return "", fmt.Errorf("read propfind response: %w", err)
	}

	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return "", fmt.Errorf("parse propfind response: %w", err)
	}
	if len(ms.Responses) == 0 {
		return "", fmt.Errorf("empty propfind response for %s", folder)
	}
	return strings.Trim(ms.Responses[0].Propstat.Prop.ETag, `"`), nil
}

// Download streams the remote file at remotePath into w and returns the
// etag the server reported for it.
func (c *Client) Download(ctx context.Context, remotePath string, w io.Writer) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetOutput(w).
		Get(c.davURL(remotePath))
	if err := handleAPIError(res, err, "download "+remotePath); err != nil {
		return "", err
	}
	return strings.Trim(res.Header.Get("ETag"), `"`), nil
}

// Upload writes body to remotePath and returns the resulting etag.
func (c *Client) Upload(ctx context.Context, remotePath string, body io.Reader) (string, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Put(c.davURL(remotePath))
	if err := handleAPIError(res, err, "upload "+remotePath); err != nil {
		return "", err
	}
	return strings.Trim(res.Header.Get("ETag"), `"`), nil
}

// MkDir creates a remote folder. An already existing folder is not an
// error; servers answer 405 for MKCOL on an existing collection.
func (c *Client) MkDir(ctx context.Context, remotePath string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Send("MKCOL", c.davURL(remotePath))
	if err != nil {
		return fmt.Errorf("http request error: mkcol %s: %w", remotePath, err)
	}
	if res.IsErrorState() && res.StatusCode != 405 {
		return fmt.Errorf("api error: mkcol %s: %s", remotePath, res.Status)
	}
	return nil
}

// Delete removes the remote file or folder at remotePath.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	res, err := c.http.R().
		SetContext(ctx).
		Send(http.MethodDelete, c.davURL(remotePath))
	return handleAPIError(res, err, "delete "+remotePath)
}

// relativeHref strips the dav base path from a multistatus href,
// returning a folder-relative path or "" for the folder itself.
func relativeHref(href, base string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	href = strings.TrimSuffix(href, "/")
	base = strings.TrimSuffix(base, "/")
	if idx := strings.Index(href, base); idx >= 0 {
		href = href[idx+len(base):]
	}
	return strings.TrimPrefix(href, "/")
}
