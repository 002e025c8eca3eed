// Package identity derives the audit label a worker attaches to the results
// it signs. The label is never used for authentication.
package identity

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Worker returns "<host>-<pid>-<hash8>". hash8 covers the worker's public
// key PEM and the process start time, so two runs on the same host and pid
// still get distinct labels.
func Worker(publicKeyPEM string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return format(host, os.Getpid(), publicKeyPEM, time.Now())
}

func format(host string, pid int, publicKeyPEM string, started time.Time) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(publicKeyPEM))
	h.Write([]byte(strconv.FormatInt(started.UnixNano(), 10)))
	return fmt.Sprintf("%s-%d-%s", host, pid, hex.EncodeToString(h.Sum(nil))[:8])
}
