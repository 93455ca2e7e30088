package webdav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Ning0612/ocsync/internal/domain"
)

// gowebdav only parses the standard DAV props, so the ownCloud file id is
// fetched with a PROPFIND of our own.
const fileIDBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns">
  <d:prop><oc:fileid/></d:prop>
</d:propfind>`

type davProp struct {
	FileID string `xml:"http://owncloud.org/ns fileid"`
}

type davPropstat struct {
	Prop   davProp `xml:"DAV: prop"`
	Status string  `xml:"DAV: status"`
}

type davResponse struct {
	Href      string        `xml:"DAV: href"`
	Propstats []davPropstat `xml:"DAV: propstat"`
}

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

// fileIDs returns the file ids of p and, with depth 1, its children, keyed
// by remote path. Servers without ids yield an empty map.
func (c *Client) fileIDs(ctx context.Context, p string, depth int) (map[string]string, error) {
	target := c.root + (&url.URL{Path: davPath(p, depth > 0)}).EscapedPath()
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", target, strings.NewReader(fileIDBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", strconv.Itoa(depth))
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, &statusError{status: resp.StatusCode, err: fmt.Errorf("propfind %s: %s", p, resp.Status)}
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("propfind %s: %w", p, err)
	}
	ids := make(map[string]string, len(ms.Responses))
	for _, r := range ms.Responses {
		rp, ok := c.hrefPath(r.Href)
		if !ok {
			continue
		}
		for _, ps := range r.Propstats {
			if ps.Prop.FileID != "" && strings.Contains(ps.Status, " 200") {
				ids[rp] = ps.Prop.FileID
			}
		}
	}
	return ids, nil
}

// hrefPath maps a response href back to a remote path.
func (c *Client) hrefPath(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	rel, ok := strings.CutPrefix(u.Path, c.rootPath)
	if !ok {
		return "", false
	}
	return domain.CleanPath(rel), true
}

// withIDs fills RemoteID of recs from the server; ids are a matching hint
// only, so a failed lookup leaves them empty.
func (c *Client) withIDs(ctx context.Context, p string, depth int, recs ...*domain.FileRecord) {
	ids, err := c.fileIDs(ctx, p, depth)
	if err != nil {
		c.log.Debug("file ids unavailable", "path", p, "error", err)
		return
	}
	for _, r := range recs {
		r.RemoteID = ids[r.RemotePath]
	}
}
