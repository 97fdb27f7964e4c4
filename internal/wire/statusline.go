package wire

import (
	"net/http"
	"strconv"
	"strings"
)

// HeaderCap is the implementation-fixed bound on accumulated
// status-line + header bytes permitted (exceeding it
// fails with OverlongHeadersError).
const HeaderCap = 4096

// StatusHeadersError is the typed failure family for the parser below
// and for chunk framing. internal/engine translates the status-line,
// header and overlong kinds raised while reading a response head into
// the model taxonomy; chunk framing failures are not translated and
// reach the reader of the response body as this type.
type StatusHeadersError struct {
	Kind string // "status-line", "header", "overlong", "chunk-header", "chunk-crlf"
	Raw  string
}

func (e *StatusHeadersError) Error() string { return "httpc: " + e.Kind + ": " + e.Raw }

// StatusHeaders is the decoded status line plus folded header block.
type StatusHeaders struct {
	Proto      string // "HTTP/1.1"
	StatusCode int
	Status     string // "200 OK"
	Header     http.Header
}

// ReadStatusHeaders reads from c until the first blank line ("\r\n\r\n"),
// bounded by HeaderCap bytes, splits the status line, and folds
// continuation header lines (leading SP/HT) into the previous value
// with a single joining space. Any bytes read past the blank line are
// pushed back onto c via Unread.
func ReadStatusHeaders(c Connection) (*StatusHeaders, error) {
	raw, extra, err := readHeaderBlock(c)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		c.Unread(extra)
	}

	lines := splitLines(raw)
	if len(lines) == 0 {
		return nil, &StatusHeadersError{Kind: "status-line", Raw: ""}
	}
	sh := &StatusHeaders{Header: http.Header{}}
	if err := sh.parseStatusLine(lines[0]); err != nil {
		return nil, err
	}

	folded := foldContinuations(lines[1:])
	for _, line := range folded {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &StatusHeadersError{Kind: "header", Raw: line}
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			return nil, &StatusHeadersError{Kind: "header", Raw: line}
		}
		sh.Header.Add(name, value)
	}
	return sh, nil
}

func (sh *StatusHeaders) parseStatusLine(line string) error {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return &StatusHeadersError{Kind: "status-line", Raw: line}
	}
	rest = strings.TrimLeft(rest, " ")
	codeStr, reason, _ := strings.Cut(rest, " ")
	if len(codeStr) != 3 {
		return &StatusHeadersError{Kind: "status-line", Raw: line}
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 999 {
		return &StatusHeadersError{Kind: "status-line", Raw: line}
	}
	sh.Proto = proto
	sh.StatusCode = code
	if reason != "" {
		sh.Status = codeStr + " " + reason
	} else {
		sh.Status = codeStr
	}
	return nil
}

// readHeaderBlock accumulates bytes from c until "\r\n\r\n" is found,
// returning the bytes before it (without the trailing blank line) and
// any bytes read past it (to be pushed back by the caller).
func readHeaderBlock(c Connection) (block []byte, extra []byte, err error) {
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		if idx := indexBlankLine(buf); idx >= 0 {
			return buf[:idx], buf[idx+4:], nil
		}
		if len(buf) > HeaderCap {
			return nil, nil, &StatusHeadersError{Kind: "overlong", Raw: strconv.Itoa(len(buf))}
		}
		n, rerr := c.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			if idx := indexBlankLine(buf); idx >= 0 {
				return buf[:idx], buf[idx+4:], nil
			}
			return nil, nil, rerr
		}
	}
}

func indexBlankLine(buf []byte) int {
	return strings.Index(string(buf), "\r\n\r\n")
}

func splitLines(block []byte) []string {
	if len(block) == 0 {
		return nil
	}
	raw := strings.Split(string(block), "\r\n")
	return raw
}

// foldContinuations joins lines beginning with SP/HT onto the
// previous line with a single separating space.
func foldContinuations(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(out) > 0 {
			out[len(out)-1] = out[len(out)-1] + " " + strings.TrimSpace(line)
			continue
		}
		out = append(out, line)
	}
	return out
}
