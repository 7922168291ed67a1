package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"

	"github.com/petrijr/credflow/pkg/api"
)

// Status list URLs come from the presented credential, so both the fetched
// document and the inflated bitstring are bounded.
const (
	// MaxStatusListResponse caps the size of a fetched status list credential.
	MaxStatusListResponse = 32 << 20
	// MaxStatusListSize caps the decompressed bitstring, 128Mi entries.
	MaxStatusListSize = 16 << 20
)

// StatusListFetcher retrieves the status list credential published at url.
type StatusListFetcher interface {
	FetchStatusList(ctx context.Context, url string) ([]byte, error)
}

// HTTPStatusListFetcher fetches status list credentials over HTTP.
type HTTPStatusListFetcher struct {
	client *resty.Client
}

// NewHTTPStatusListFetcher creates a fetcher whose requests time out after
// timeout (10s when zero).
func NewHTTPStatusListFetcher(timeout time.Duration) *HTTPStatusListFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStatusListFetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetResponseBodyLimit(MaxStatusListResponse).
			SetHeader("Accept", "application/vc+ld+json, application/json, application/jwt"),
	}
}

func (f *HTTPStatusListFetcher) FetchStatusList(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		if errors.Is(err, resty.ErrResponseBodyTooLarge) {
			return nil, api.NewError(api.KindData, "status list response too large", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, api.NewError(api.KindResolution, "status list unreachable", err)
	}
	if !resp.IsSuccess() {
		return nil, api.Errorf(api.KindResolution, "status list %s: unexpected status %d", url, resp.StatusCode())
	}
	return resp.Body(), nil
}

// StatusList is a revocation bitstring. Bit 0 is the most significant bit
// of the first byte.
type StatusList []byte

// NewStatusList returns a list able to hold size entries.
func NewStatusList(size int) StatusList {
	return make(StatusList, (size+7)/8)
}

// Set marks index as revoked.
func (l StatusList) Set(index int) {
	l[index/8] |= 1 << (7 - uint(index%8))
}

// Bit reports whether index is set.
func (l StatusList) Bit(index int) (bool, error) {
	if index < 0 || index/8 >= len(l) {
		return false, api.Errorf(api.KindData, "status list index %d out of range (size %d)", index, len(l)*8)
	}
	return l[index/8]&(1<<(7-uint(index%8))) != 0, nil
}

// Encode returns the multibase ("u" + base64url) gzip encoding of the list.
func (l StatusList) Encode() (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(l); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return "u" + base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeStatusList decodes an encodedList value. The multibase "u" prefix
// is optional; padding is tolerated. Lists inflating past MaxStatusListSize
// are rejected.
func DecodeStatusList(encoded string) (StatusList, error) {
	return decodeStatusList(encoded, MaxStatusListSize)
}

func decodeStatusList(encoded string, limit int64) (StatusList, error) {
	encoded = strings.TrimRight(strings.TrimSpace(encoded), "=")
	encoded = strings.TrimPrefix(encoded, "u")

	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, api.NewError(api.KindData, "invalid encodedList encoding", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, api.NewError(api.KindData, "invalid encodedList compression", err)
	}
	defer zr.Close()

	bits, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, api.NewError(api.KindData, "invalid encodedList compression", err)
	}
	if int64(len(bits)) > limit {
		return nil, api.Errorf(api.KindData, "encodedList exceeds %d bytes", limit)
	}
	return bits, nil
}

// encodedListOf extracts credentialSubject.encodedList from a status list
// credential given as JSON or as a JWT with a vc claim.
func encodedListOf(doc []byte) (string, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		parts := strings.Split(string(trimmed), ".")
		if len(parts) != 3 {
			return "", api.Errorf(api.KindData, "status list credential is neither JSON nor a JWT")
		}
		payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
		if err != nil {
			return "", api.NewError(api.KindData, "invalid status list JWT payload", err)
		}
		trimmed = payload
		if vc := gjson.GetBytes(trimmed, "vc"); vc.Exists() {
			trimmed = []byte(vc.Raw)
		}
	}

	for _, path := range []string{"credentialSubject.encodedList", "credentialSubject.0.encodedList"} {
		if res := gjson.GetBytes(trimmed, path); res.Exists() {
			return res.String(), nil
		}
	}
	return "", api.Errorf(api.KindData, "status list credential has no credentialSubject.encodedList")
}

// IsRevoked evaluates a credentialStatus entry against the fetched list.
func IsRevoked(ctx context.Context, fetcher StatusListFetcher, status *Status) (bool, error) {
	if status == nil {
		return false, nil
	}
	if status.StatusListCredential == "" {
		return false, api.Errorf(api.KindData, "credentialStatus.statusListCredential is empty")
	}
	if fetcher == nil {
		return false, api.Errorf(api.KindConfiguration, "no status list fetcher configured")
	}

	doc, err := fetcher.FetchStatusList(ctx, status.StatusListCredential)
	if err != nil {
		return false, fmt.Errorf("unable to determine revocation status: %w", err)
	}
	encoded, err := encodedListOf(doc)
	if err != nil {
		return false, err
	}
	list, err := DecodeStatusList(encoded)
	if err != nil {
		return false, err
	}
	return list.Bit(int(status.StatusListIndex))
}
