package model

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ParseURL accepts an http:// or https:// URL and returns a Request
// with Method defaulted to GET. Actual URL syntax parsing is
// delegated to net/url (an external collaborator);
// this function only adds the typed failure mode (unknown scheme,
// empty host, malformed port). The returned Request keeps raw as its
// URL; port and path defaulting happen later, in Prepare.
func ParseURL(raw string) (*Request, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidURLError{URL: raw, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &InvalidURLError{URL: raw, Reason: "unknown scheme " + u.Scheme}
	}
	if u.Host == "" {
		return nil, &InvalidURLError{URL: raw, Reason: "empty host"}
	}
	if _, err := effectivePort(u); err != nil {
		return nil, &InvalidURLError{URL: raw, Reason: err.Error()}
	}
	return &Request{Method: "GET", URL: raw, Header: Header{}}, nil
}

// effectivePort validates an explicit port, if any, and returns the
// scheme default (80/443) otherwise.
func effectivePort(u *url.URL) (int, error) {
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return 0, &InvalidURLError{URL: u.String(), Reason: "malformed port " + p}
		}
		return n, nil
	}
	if u.Scheme == "https" {
		return 443, nil
	}
	return 80, nil
}

// WithQuery appends params to rawURL's query string and returns the
// combined URL. Keys are visited in sorted order so the result is
// deterministic; each key and value is percent-encoded with
// queryEncode rather than net/url's own escaper, so callers get the
// exact unreserved/space/%HH rule this package promises on
// construction. Existing query parameters in rawURL are left in place
// ahead of the appended ones.
func WithQuery(rawURL string, params map[string][]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &InvalidURLError{URL: rawURL, Reason: err.Error()}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(u.RawQuery)
	for _, k := range keys {
		ek := queryEncode(k)
		for _, v := range params[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(ek)
			b.WriteByte('=')
			b.WriteString(queryEncode(v))
		}
	}
	u.RawQuery = b.String()
	return u.String(), nil
}

// queryEncode percent-encodes raw bytes: unreserved
// characters (A-Z a-z 0-9 - _ . ~) pass through, space becomes '+',
// everything else becomes %HH in uppercase hex. It is idempotent on
// the unreserved alphabet and injective on bytes.
func queryEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c):
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex(c >> 4))
			b.WriteByte(upperHex(c & 0xf))
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}

func upperHex(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}
