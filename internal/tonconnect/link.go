package tonconnect

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/tonvault/backend/internal/models"
)

// ConnectItem is one requested permission from the dApp, e.g. ton_addr or
// ton_proof (the latter carries a payload the wallet must sign).
type ConnectItem struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}

// ConnectRequest is the `r` query parameter of a connect link. Fields beyond
// these are protocol-specific and travel opaquely in Link.Raw.
type ConnectRequest struct {
	ManifestURL string        `json:"manifestUrl"`
	Items       []ConnectItem `json:"items,omitempty"`
}

// Link is a parsed connect deeplink.
type Link struct {
	ClientID string          // `id` query param, opaque, may be empty
	Request  ConnectRequest  // parsed `r`
	Raw      json.RawMessage // original `r` JSON, handed to the bridge untouched
}

// ParseLink extracts the client id and connect request from a connect link.
// Desktop deeplinks arrive with a "--url=" argv prefix; it is stripped here.
// A missing or unparsable `r` is ErrBadLink: no identity can be established
// without the request payload.
func ParseLink(raw string) (*Link, error) {
	parsed, err := url.Parse(strings.TrimPrefix(raw, "--url="))
	if err != nil {
		return nil, models.ErrBadLink
	}

	query := parsed.Query()
	rString := query.Get("r")
	if rString == "" {
		return nil, models.ErrBadLink
	}

	var req ConnectRequest
	if err := json.Unmarshal([]byte(rString), &req); err != nil {
		return nil, models.ErrBadLink
	}

	return &Link{
		ClientID: query.Get("id"),
		Request:  req,
		Raw:      json.RawMessage(rString),
	}, nil
}

// ProofPayload returns the ton_proof challenge if the dApp requested one.
func (l *Link) ProofPayload() (string, bool) {
	for _, item := range l.Request.Items {
		if item.Name == "ton_proof" {
			return item.Payload, true
		}
	}
	return "", false
}
