// Package bridge implements the HTTP client side of the TON Connect bridge
// protocol: connect replies are sealed with the session's ephemeral X25519
// pair and posted to the bridge, addressed by the dApp's client id.
package bridge

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tonvault/backend/internal/ton"
	"github.com/tonvault/backend/internal/tonconnect"
	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/box"
)

// Message TTL on the bridge side, seconds. The dApp polls; five minutes is
// what the reference bridge uses for connect events.
const defaultTTL = 300

// TON Connect network ids.
const (
	NetworkMainnet = "-239"
	NetworkTestnet = "-3"
)

type Client struct {
	baseURL    string
	network    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL, network string, log *zap.Logger) *Client {
	id := NetworkMainnet
	if network == "testnet" {
		id = NetworkTestnet
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		network: id,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type deviceInfo struct {
	Platform           string `json:"platform"`
	AppName            string `json:"appName"`
	AppVersion         string `json:"appVersion"`
	MaxProtocolVersion int    `json:"maxProtocolVersion"`
	Features           []any  `json:"features"`
}

type tonAddrItem struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Network   string `json:"network"`
	PublicKey string `json:"publicKey"`
}

type tonProofItem struct {
	Name  string    `json:"name"`
	Proof proofBody `json:"proof"`
}

type proofBody struct {
	Timestamp int64           `json:"timestamp"`
	Domain    ton.ProofDomain `json:"domain"`
	Payload   string          `json:"payload"`
	Signature string          `json:"signature"`
}

type connectEvent struct {
	ID      int64          `json:"id"`
	Event   string         `json:"event"`
	Payload connectPayload `json:"payload"`
}

type connectPayload struct {
	Items  []any      `json:"items"`
	Device deviceInfo `json:"device"`
}

// SendConnectAck seals the connect event for the dApp and posts it to the
// bridge. Implements tonconnect.BridgeSender.
func (c *Client) SendConnectAck(ctx context.Context, ack *tonconnect.ConnectAck) error {
	peerPub, err := parseClientID(ack.ClientID)
	if err != nil {
		return err
	}

	event := connectEvent{
		ID:    time.Now().UnixMilli(),
		Event: "connect",
		Payload: connectPayload{
			Items:  c.buildItems(ack),
			Device: device(),
		},
	}
	plaintext, err := json.Marshal(event)
	if err != nil {
		return err
	}

	sealed, err := seal(plaintext, peerPub, ack.SessionSecret)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/message?client_id=%s&to=%s&ttl=%d",
		c.baseURL, hex.EncodeToString(ack.SessionPublic[:]), ack.ClientID, defaultTTL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(sealed))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, string(body))
	}

	c.log.Info("connect event dispatched",
		zap.String("client_id", ack.ClientID),
		zap.String("dapp", ack.Host),
	)
	return nil
}

// buildItems answers the requested connect items: ton_addr always, ton_proof
// only when the dApp asked for it.
func (c *Client) buildItems(ack *tonconnect.ConnectAck) []any {
	pub := ack.Secret.Public().(ed25519.PublicKey)
	items := []any{
		tonAddrItem{
			Name:      "ton_addr",
			Address:   ton.RawString(ack.Wallet.Address),
			Network:   c.network,
			PublicKey: hex.EncodeToString(pub),
		},
	}

	for _, item := range ack.Request.Items {
		if item.Name != "ton_proof" {
			continue
		}
		proof := ton.SignProof(ack.Secret, ack.Wallet.Address, ack.Host, item.Payload)
		items = append(items, tonProofItem{
			Name: "ton_proof",
			Proof: proofBody{
				Timestamp: proof.Timestamp,
				Domain:    proof.Domain,
				Payload:   proof.Payload,
				Signature: base64.StdEncoding.EncodeToString(proof.Signature),
			},
		})
		break
	}
	return items
}

func device() deviceInfo {
	return deviceInfo{
		Platform:           "linux",
		AppName:            "tonvault",
		AppVersion:         "1.0.0",
		MaxProtocolVersion: 2,
		Features: []any{
			"SendTransaction",
			map[string]any{"name": "SendTransaction", "maxMessages": 4},
		},
	}
}

// parseClientID decodes the dApp's hex client id into its X25519 public key.
func parseClientID(clientID string) (*[32]byte, error) {
	raw, err := hex.DecodeString(clientID)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("bad bridge client id %q", clientID)
	}
	var pub [32]byte
	copy(pub[:], raw)
	return &pub, nil
}

// seal encrypts the event with nacl box, nonce prepended, base64 on the wire.
func seal(plaintext []byte, peerPub, secret *[32]byte) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := box.Seal(nonce[:], plaintext, &nonce, peerPub, secret)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
