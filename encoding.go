package v4vkit

import (
	"fmt"
	"strings"

	"github.com/fiatjaf/go-lnurl"
)

const lnurlPayPath = "/.well-known/lnurlp/"

// DecodeLNURL returns the URL behind a bech32 LNURL. A lightning: prefix
// is accepted.
func DecodeLNURL(code string) (string, error) {
	url, err := lnurl.LNURLDecode(code)
	if err != nil {
		return "", fmt.Errorf("error decoding LNURL: %w", err)
	}

	return url, nil
}

// EncodeLNURL bech32-encodes url in the upper case form wallets expect in
// QR codes.
func EncodeLNURL(url string) (string, error) {
	code, err := lnurl.LNURLEncode(url)
	if err != nil {
		return "", err
	}

	return strings.ToUpper(code), nil
}

// LightningAddressURL maps user@domain to its LNURL-pay endpoint.
func LightningAddressURL(addr string, notls bool) (string, error) {
	username, domain, ok := lnurl.ParseInternetIdentifier(addr)
	if !ok {
		return "", fmt.Errorf("invalid LN address %q. Expected the "+
			"form <username>@<domain>", addr)
	}

	protocol := "https"
	if notls || strings.HasSuffix(domain, ".onion") {
		protocol = "http"
	}

	return fmt.Sprintf("%s://%s%s%s", protocol, domain, lnurlPayPath,
		username), nil
}

// ResolvePayURL turns any of the pay code forms a recipient or a user may
// hand us into the HTTP URL of the LNURL-pay endpoint.
func ResolvePayURL(target string, notls bool) (string, error) {
	protocol := "https"
	if notls {
		protocol = "http"
	}

	var (
		url string
		err error
	)
	switch {
	case strings.HasPrefix(strings.ToUpper(target), "LNURL"):
		url, err = DecodeLNURL(target)
		if err != nil {
			return "", err
		}

	case strings.HasPrefix(target, "lightning:"):
		url, err = DecodeLNURL(strings.TrimPrefix(target, "lightning:"))
		if err != nil {
			return "", err
		}

	case strings.HasPrefix(target, "lnurlp://"):
		url = strings.Replace(target, "lnurlp", protocol, 1)

	case strings.Contains(target, "@"):
		return LightningAddressURL(target, notls)

	default:
		return "", fmt.Errorf("unsupported scheme: %q", target)
	}

	// Ensure that the url uses tls unless we were told not to.
	if !notls && !strings.HasPrefix(url, "https") &&
		!strings.Contains(url, ".onion") {

		return "", fmt.Errorf("url is not https: %s", url)
	}

	return url, nil
}
