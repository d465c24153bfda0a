package tonconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// AppIdentity is what the UI shows about the requesting dApp. Resolution
// never fails: in the worst case every field is empty or synthesized.
type AppIdentity struct {
	IconURL  string          `json:"icon_url"`
	Name     string          `json:"name"`
	URL      string          `json:"url"`
	Host     string          `json:"host"`
	ClientID string          `json:"client_id"`
	Raw      json.RawMessage `json:"-"`
}

type manifest struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
	URL     string `json:"url"`
}

// ManifestResolver fetches the dApp's application descriptor. Manifest servers
// are untrusted third parties: a slow or malformed manifest must never block
// or crash the connect flow, so every failure degrades to synthesized fields.
type ManifestResolver struct {
	client *http.Client
	log    *zap.Logger
}

func NewManifestResolver(timeout time.Duration, log *zap.Logger) *ManifestResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ManifestResolver{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Resolve builds the dApp identity for a parsed connect link.
//
// Degradation ladder:
//  1. manifest fetch fails (timeout, network, bad JSON): continue with an
//     empty descriptor;
//  2. descriptor has no url: synthesize name/url/host from the manifest
//     URL's own origin;
//  3. descriptor url does not parse: host is reported empty.
func (r *ManifestResolver) Resolve(ctx context.Context, link *Link) *AppIdentity {
	meta := r.fetch(ctx, link.Request.ManifestURL)

	if meta.URL == "" {
		identity := &AppIdentity{
			IconURL:  meta.IconURL,
			Name:     meta.Name,
			ClientID: link.ClientID,
			Raw:      link.Raw,
		}
		if parsed, err := url.Parse(link.Request.ManifestURL); err == nil && parsed.Host != "" {
			if identity.Name == "" {
				identity.Name = parsed.Host
			}
			identity.URL = parsed.Scheme + "://" + parsed.Host
			identity.Host = parsed.Host
		}
		return identity
	}

	host := ""
	if serviceURL, err := url.Parse(meta.URL); err == nil {
		host = serviceURL.Host
	} else {
		r.log.Debug("manifest url does not parse", zap.String("url", meta.URL), zap.Error(err))
	}

	return &AppIdentity{
		IconURL:  meta.IconURL,
		Name:     meta.Name,
		URL:      meta.URL,
		Host:     host,
		ClientID: link.ClientID,
		Raw:      link.Raw,
	}
}

func (r *ManifestResolver) fetch(ctx context.Context, manifestURL string) manifest {
	var meta manifest
	if manifestURL == "" {
		return meta
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		r.log.Debug("bad manifest url", zap.String("url", manifestURL), zap.Error(err))
		return meta
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("manifest fetch failed", zap.String("url", manifestURL), zap.Error(err))
		return meta
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Debug("manifest fetch non-200", zap.String("url", manifestURL), zap.Int("status", resp.StatusCode))
		return meta
	}

	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		r.log.Debug("manifest decode failed", zap.String("url", manifestURL), zap.Error(err))
		return manifest{}
	}
	return meta
}
