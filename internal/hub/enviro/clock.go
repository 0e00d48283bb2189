package enviro

import (
	"crypto/rand"
	"time"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().UnixMilli() }

// CryptoRand reads from the operating system's entropy source.
type CryptoRand struct{}

func (CryptoRand) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
