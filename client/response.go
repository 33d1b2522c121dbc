package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-request-cache/types"
)

func readResponse(resp *fasthttp.Response) (*types.Response, error) {
	body, err := decodeBody(resp)
	if err != nil {
		return nil, types.Errorf(types.ErrClientResponseInvalid, "decode body: %v", err)
	}

	header := make(map[string]string)
	resp.Header.VisitAll(func(key, value []byte) {
		header[string(key)] = string(value)
	})

	return &types.Response{
		StatusCode: resp.StatusCode(),
		Header:     header,
		Body:       body,
	}, nil
}

func decodeBody(resp *fasthttp.Response) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(string(resp.Header.ContentEncoding())))

	switch encoding {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(resp.Body())))
	case "gzip":
		return resp.BodyGunzip()
	default:
		body := make([]byte, len(resp.Body()))
		copy(body, resp.Body())
		return body, nil
	}
}

func IsSuccessfulResponse(statusCode int, err error) bool {
	if err != nil {
		return false
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return true
	case statusCode >= 400 && statusCode < 500:
		return statusCode != 429 && statusCode != 408
	default:
		return false
	}
}

func IsCircuitBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return true
	}

	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func IsRetryableError(statusCode int, err error) bool {
	if err != nil {
		return isNetworkError(err) || isTemporaryError(err)
	}

	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ETIMEDOUT:
			return true
		}
	}

	return errors.Is(err, fasthttp.ErrConnectionClosed) || errors.Is(err, io.EOF)
}

func isTemporaryError(err error) bool {
	type timeout interface {
		Timeout() bool
	}

	var to timeout
	if errors.As(err, &to) {
		return to.Timeout()
	}

	return false
}
