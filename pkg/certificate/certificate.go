// Package certificate implements the contract ownership certificate: a
// signed, time-bounded assertion binding a compute instance, the binary it
// runs and its owner. Certificates are canonical records signed into EdDSA
// JWTs; verification only needs the hub's public key.
package certificate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Certificate is the canonical, unsigned certificate record. Two deployments
// never share a certificate because the instance handle is unique.
type Certificate struct {
	Hub        string `json:"hub"`
	Owner      string `json:"owner"`
	Instance   string `json:"instance"`
	BinaryHash string `json:"binary_hash"`
	TemplateID uint64 `json:"template_id"`
	Expiration int64  `json:"expiration"`
}

// Fingerprint returns a stable hex digest of the canonical record, used as
// the lookup key for published signed certificates.
func (c Certificate) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%d", c.Hub, c.Owner, c.Instance, c.BinaryHash, c.TemplateID, c.Expiration)
	return hex.EncodeToString(h.Sum(nil))
}

// Signed pairs the canonical record with its signed JWT form.
type Signed struct {
	Certificate Certificate `json:"certificate"`
	Token       string      `json:"token"`
}
