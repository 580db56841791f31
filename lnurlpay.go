package v4vkit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
	"github.com/tidwall/gjson"
)

// TagPayRequest is the tag of an LNURL-pay first step response.
const TagPayRequest = "payRequest"

type PayResponse struct {
	// Callback is the URL from LN SERVICE which will accept the pay request
	// parameters
	Callback string

	// MaxSendable is the max amount LN SERVICE is willing to receive, in
	// millisats.
	MaxSendable int64

	// MinSendable is the min amount LN SERVICE is willing to receive, can
	// not be less than 1 or more than `maxSendable`
	MinSendable int64

	// Metadata is the raw metadata JSON string. Its hash must match the
	// invoice description hash.
	Metadata string

	// CommentAllowed is the max comment length, zero when comments are
	// not accepted.
	CommentAllowed int

	// Tag is the type of LNURL.
	Tag string
}

// Description returns the text/plain entry of the metadata.
func (p *PayResponse) Description() string {
	for _, entry := range gjson.Parse(p.Metadata).Array() {
		pair := entry.Array()
		if len(pair) == 2 && pair[0].String() == "text/plain" {
			return pair[1].String()
		}
	}

	return ""
}

type InvoiceResponse struct {
	// PayRequest is a bech32-serialized lightning invoice.
	PayRequest string `json:"pr"`

	// Routes is usually an empty array.
	Routes []json.RawMessage `json:"routes"`
}

// LNURLPayClient walks the two LNURL-pay round trips needed to turn a
// Lightning Address into a payable invoice.
type LNURLPayClient struct {
	httpClient *http.Client
}

func NewLNURLPayClient(httpClient *http.Client) *LNURLPayClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &LNURLPayClient{httpClient: httpClient}
}

// FetchPayParams requests the first LNURL-pay step. Services that answer
// an HTTPS request with 426 Upgrade Required are retried over HTTP, which
// is what local test setups tend to need.
func (c *LNURLPayClient) FetchPayParams(ctx context.Context,
	payURL string) (*PayResponse, error) {

	body, status, err := c.get(ctx, payURL)
	if err == nil && status == http.StatusUpgradeRequired &&
		strings.HasPrefix(payURL, "https://") {

		payURL = "http://" + strings.TrimPrefix(payURL, "https://")
		body, status, err = c.get(ctx, payURL)
	}
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("LNURL request failed: %d %s", status,
			http.StatusText(status))
	}

	j := gjson.ParseBytes(body)
	if strings.EqualFold(j.Get("status").String(), "ERROR") {
		return nil, &LNURLError{
			URL:    payURL,
			Reason: j.Get("reason").String(),
		}
	}

	resp := &PayResponse{
		Callback:       j.Get("callback").String(),
		MaxSendable:    j.Get("maxSendable").Int(),
		MinSendable:    j.Get("minSendable").Int(),
		CommentAllowed: int(j.Get("commentAllowed").Int()),
		Tag:            j.Get("tag").String(),
	}

	// Metadata is a JSON encoded string, some services send the array
	// itself instead.
	meta := j.Get("metadata")
	if meta.Type == gjson.String {
		resp.Metadata = meta.String()
	} else {
		resp.Metadata = meta.Raw
	}

	if resp.Tag != TagPayRequest {
		return nil, fmt.Errorf("unexpected LNURL tag %q", resp.Tag)
	}
	if resp.Callback == "" {
		return nil, fmt.Errorf("LNURL not supported - no callback")
	}

	return resp, nil
}

// RequestInvoice performs the second LNURL-pay step and checks that the
// invoice matches what was asked for.
func (c *LNURLPayClient) RequestInvoice(ctx context.Context,
	params *PayResponse, msat int64, comment string) (string, error) {

	if msat < params.MinSendable || msat > params.MaxSendable {
		return "", fmt.Errorf("amount %d msat outside sendable range "+
			"[%d, %d]", msat, params.MinSendable, params.MaxSendable)
	}

	callback, err := url.Parse(params.Callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %w", err)
	}

	query := callback.Query()
	query.Set("amount", fmt.Sprintf("%d", msat))
	if comment != "" && params.CommentAllowed > 0 {
		if len(comment) > params.CommentAllowed {
			comment = comment[:params.CommentAllowed]
		}
		query.Set("comment", comment)
	}
	callback.RawQuery = query.Encode()

	body, status, err := c.get(ctx, callback.String())
	if err != nil {
		return "", err
	}

	j := gjson.ParseBytes(body)
	if strings.EqualFold(j.Get("status").String(), "ERROR") {
		return "", &LNURLError{
			URL:    params.Callback,
			Reason: j.Get("reason").String(),
		}
	}
	if status >= 300 {
		return "", fmt.Errorf("invoice request failed: %d %s", status,
			http.StatusText(status))
	}

	var invoice InvoiceResponse
	if err := json.Unmarshal(body, &invoice); err != nil {
		return "", fmt.Errorf("could not parse invoice response: %w",
			err)
	}
	if invoice.PayRequest == "" {
		return "", fmt.Errorf("failed to create invoice - no payment " +
			"request")
	}

	if err := checkInvoice(invoice.PayRequest, params, msat); err != nil {
		return "", err
	}

	return invoice.PayRequest, nil
}

// InvoiceFor resolves a Lightning Address, LNURL or lnurlp URL and
// fetches an invoice of msat from it.
func (c *LNURLPayClient) InvoiceFor(ctx context.Context, target string,
	msat int64, comment string, notls bool) (string, error) {

	payURL, err := ResolvePayURL(target, notls)
	if err != nil {
		return "", err
	}

	params, err := c.FetchPayParams(ctx, payURL)
	if err != nil {
		return "", err
	}

	return c.RequestInvoice(ctx, params, msat, comment)
}

func (c *LNURLPayClient) get(ctx context.Context, rawURL string) ([]byte,
	int, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("GET request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("could not read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

func checkInvoice(payReq string, params *PayResponse, msat int64) error {
	inv, err := zpay32.Decode(payReq, invoiceNetwork(payReq))
	if err != nil {
		return fmt.Errorf("could not decode invoice: %w", err)
	}

	if inv.MilliSat != nil && *inv.MilliSat != lnwire.MilliSatoshi(msat) {
		return fmt.Errorf("invoice amount %v does not match requested "+
			"%d msat", *inv.MilliSat, msat)
	}

	// Ensure that the invoice description hash matches the metadata
	// received before.
	if inv.DescriptionHash != nil {
		hash := sha256.Sum256([]byte(params.Metadata))
		if !bytes.Equal(inv.DescriptionHash[:], hash[:]) {
			return fmt.Errorf("invalid invoice description hash")
		}
	}

	return nil
}

// invoiceNetwork picks chain params from the invoice human readable part.
func invoiceNetwork(payReq string) *chaincfg.Params {
	pr := strings.ToLower(payReq)
	switch {
	case strings.HasPrefix(pr, "lnbcrt"):
		return &chaincfg.RegressionNetParams
	case strings.HasPrefix(pr, "lntbs"):
		return &chaincfg.SigNetParams
	case strings.HasPrefix(pr, "lntb"):
		return &chaincfg.TestNet3Params
	case strings.HasPrefix(pr, "lnsb"):
		return &chaincfg.SimNetParams
	default:
		return &chaincfg.MainNetParams
	}
}
