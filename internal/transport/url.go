package transport

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// buildURL joins the base URL with the request path, substitutes {param}
// segments, and appends the query string. Empty query values are omitted so
// unset filters never reach the server.
func (c *Client) buildURL(req *Request) (string, error) {
	path, err := expandPath(req.Path, req.PathParams)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := c.baseURL + path
	if len(req.Query) == 0 {
		return target, nil
	}

	values := url.Values{}
	for k, v := range req.Query {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	if len(values) == 0 {
		return target, nil
	}
	return target + "?" + values.Encode(), nil
}

// expandPath substitutes {name} placeholders with escaped values. A
// placeholder without a matching param is an error rather than a request for
// a literal "{id}" resource.
func expandPath(path string, params map[string]string) (string, error) {
	if !strings.Contains(path, "{") {
		return path, nil
	}

	out := path
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", url.PathEscape(v))
	}

	if i := strings.IndexByte(out, '{'); i >= 0 {
		j := strings.IndexByte(out[i:], '}')
		if j < 0 {
			return "", fmt.Errorf("malformed path template %q", path)
		}
		return "", fmt.Errorf("missing path parameter %q in %q", out[i+1:i+j], path)
	}
	return out, nil
}

// QueryFrom flattens mixed-type values into the string map the Request
// expects, skipping nils and empties. Keys are processed in sorted order so
// behavior is deterministic.
func QueryFrom(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(in))
	for _, k := range keys {
		v := in[k]
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if s == "" {
			continue
		}
		out[k] = s
	}
	return out
}
