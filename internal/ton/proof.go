package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/xssnick/tonutils-go/address"
)

const (
	// TonProofPrefix — фиксированный префикс для TON Proof по спецификации TON Connect.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	// TonConnectPrefix — префикс перед SHA256 хешем сообщения.
	TonConnectPrefix = "ton-connect"
)

// Proof is the signed ton_proof reply item sent back to a dApp that requested
// proof of address ownership during connect.
type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`
	Signature []byte      `json:"signature"` // ed25519, base64 on the wire
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// SignProof builds and signs a TON Proof for the given address and dApp domain.
//
// Message layout (TON Connect spec):
//
//	message = "ton-proof-item-v2/" ++ workchain(4 LE) ++ address_hash(32)
//	          ++ domain_len(4 LE) ++ domain ++ timestamp(8 LE) ++ payload
//	signature = Ed25519(secret, sha256(0xffff ++ "ton-connect" ++ sha256(message)))
func SignProof(secret ed25519.PrivateKey, addr *address.Address, domain, payload string) Proof {
	proof := Proof{
		Timestamp: time.Now().Unix(),
		Domain: ProofDomain{
			LengthBytes: len(domain),
			Value:       domain,
		},
		Payload: payload,
	}

	message := []byte(TonProofPrefix)

	wcBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(wcBytes, uint32(addr.Workchain()))
	message = append(message, wcBytes...)

	message = append(message, addr.Data()...)

	domainLenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(domainLenBytes, uint32(proof.Domain.LengthBytes))
	message = append(message, domainLenBytes...)
	message = append(message, []byte(proof.Domain.Value)...)

	tsBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBytes, uint64(proof.Timestamp))
	message = append(message, tsBytes...)

	message = append(message, []byte(proof.Payload)...)

	msgHash := sha256.Sum256(message)

	signatureMessage := []byte{0xff, 0xff}
	signatureMessage = append(signatureMessage, []byte(TonConnectPrefix)...)
	signatureMessage = append(signatureMessage, msgHash[:]...)

	finalHash := sha256.Sum256(signatureMessage)
	proof.Signature = ed25519.Sign(secret, finalHash[:])

	return proof
}
