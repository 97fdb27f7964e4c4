package engine

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-httpc/httpc/internal/cookiejar"
	"github.com/go-httpc/httpc/internal/model"
)

// Clock lets callers control what "now" means for cookie expiry and
// reuse it across a whole Perform call, following the same
// injected-clock idiom internal/pool uses for its reaper.
type Clock func() time.Time

// PerformRequest runs the full request lifecycle: prepare, resolve
// proxy, inject cookies, attempt (with the retry-once policy), follow
// redirects, update the jar, and check the final status. It returns
// the response and the jar value as it stood after every hop's
// Set-Cookie headers were folded in.
func PerformRequest(ctx context.Context, req *model.Request, jar cookiejar.Jar, s Settings, now Clock) (*model.Response, cookiejar.Jar, error) {
	s = s.withDefaults()
	if now == nil {
		now = time.Now
	}

	maxRedirects := req.RedirectMax
	var history []*model.Response
	currentReq := req
	origHeader := req.Header.Clone()

	for {
		pr, err := model.Prepare(currentReq)
		if err != nil {
			return nil, jar, err
		}
		if s.ModifyRequest != nil {
			if err := s.ModifyRequest(pr); err != nil {
				return nil, jar, err
			}
		}

		if cookieHeader := cookiejar.InsertCookiesIntoRequest(jar, pr.URL, now()); cookieHeader != "" {
			pr.Header.Set("Cookie", cookieHeader)
		} else {
			pr.Header.Del("Cookie")
		}

		proxy, err := ResolveProxy(pr)
		if err != nil {
			return nil, jar, err
		}

		resp, err := AttemptWithRetry(ctx, pr, proxy, s)
		if err != nil {
			return nil, jar, err
		}

		if setCookies := resp.Header["Set-Cookie"]; len(setCookies) > 0 {
			jar = cookiejar.UpdateCookieJar(jar, pr.URL, setCookies, now(), cookiejar.DefaultOptions)
		}

		next, done, rerr := checkRedirect(currentReq, pr, resp, len(history), maxRedirects, s.RewriteMethodOn301302, origHeader)
		if rerr != nil {
			drain(resp)
			if tme, ok := rerr.(*model.TooManyRedirectsError); ok {
				tme.History = history
			}
			return nil, jar, rerr
		}
		if done {
			if err := checkStatus(currentReq, resp); err != nil {
				return resp, jar, err
			}
			return resp, jar, nil
		}

		history = append(history, resp)
		drain(resp)
		currentReq = next
	}
}

func checkStatus(req *model.Request, resp *model.Response) error {
	if req.CheckStatus == nil {
		return nil
	}
	if err := req.CheckStatus(resp.StatusCode, resp.Header); err != nil {
		return &model.StatusCodeError{
			StatusCode:   resp.StatusCode,
			Status:       resp.Status,
			Header:       resp.Header,
			CookieHeader: resp.Header["Set-Cookie"],
		}
	}
	return nil
}

func drain(resp *model.Response) {
	if resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

var redirectStatuses = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

// checkRedirect implements the redirect-following half of the engine:
// whether resp is a redirect to follow, and if so, the request for the
// next hop. done is true when resp is the final response to return
// (not a redirect, no Location, or redirects disabled); an exhausted
// budget is reported as TooManyRedirectsError instead.
func checkRedirect(origReq *model.Request, pr *model.PreparedRequest, resp *model.Response, hopsSoFar, maxRedirects int, rewrite301302 bool, origHeader model.Header) (next *model.Request, done bool, err error) {
	if !redirectStatuses[resp.StatusCode] {
		return nil, true, nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, true, nil
	}
	if maxRedirects <= 0 {
		return nil, true, nil
	}
	if hopsSoFar >= maxRedirects {
		return nil, false, &model.TooManyRedirectsError{}
	}

	ref, perr := url.Parse(loc)
	if perr != nil {
		return nil, false, &model.UnparseableRedirectError{Response: resp}
	}
	target := pr.URL.ResolveReference(ref)

	method := origReq.Method
	if method == "" {
		method = "GET"
	}
	bodyForNext := origReq.Body
	rewriteToGet := resp.StatusCode == 303 || (rewrite301302 && (resp.StatusCode == 301 || resp.StatusCode == 302))
	if rewriteToGet {
		method = "GET"
		bodyForNext = nil
	}

	header := origHeader.Clone()
	if header == nil {
		header = model.Header{}
	}
	if !strings.EqualFold(target.Hostname(), pr.Host) {
		header.Del("Authorization")
		header.Del("Cookie")
	}

	next = &model.Request{
		Method:          method,
		URL:             target.String(),
		Header:          header,
		Body:            bodyForNext,
		Proxy:           origReq.Proxy,
		SOCKSProxy:      origReq.SOCKSProxy,
		RawBody:         origReq.RawBody,
		Decompress:      origReq.Decompress,
		RedirectMax:     origReq.RedirectMax,
		CheckStatus:     origReq.CheckStatus,
		ResponseTimeout: origReq.ResponseTimeout,
		HTTPVersion:     origReq.HTTPVersion,
	}
	return next, false, nil
}
