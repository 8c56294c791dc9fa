package lifecycle

import (
	"crypto/rand"
	"encoding/hex"
	"hash/fnv"
)

// linuxIfNameMaxLen is the kernel's interface-name length limit (IFNAMSIZ-1).
const linuxIfNameMaxLen = 15

// hostVethPrefix and peerVethPrefix pick deterministic-short-hash naming
// over raw container-id truncation (spec §9's Open Question, resolved in
// favor of the hash strategy). The teacher's own names.go already prefers
// a deterministic short hash over truncation, just with SHA-1; spec §4.6
// step 5 calls for FNV-1a-32 specifically.
const (
	hostVethPrefix = "veth_"
	peerVethPrefix = "ohno_"
)

// hostVethName returns the deterministic host-side veth name for a
// container id: veth_<6-hex-FNV1a-32(containerID)>.
func hostVethName(containerID string) string {
	return hostVethPrefix + shortHash(containerID)
}

// peerVethTempName returns a random temporary peer veth name, to sidestep
// name collisions before it is moved into the Pod netns and renamed to the
// requested ifname.
func peerVethTempName() (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	return peerVethPrefix + shortHash(token), nil
}

// shortHash renders FNV-1a-32(key) as 6 hex digits, short enough that any
// of the fixed prefixes above stays under linuxIfNameMaxLen.
func shortHash(key string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	sum := h.Sum32()
	hexHash := hex.EncodeToString([]byte{
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})
	return hexHash[:6]
}

func randomToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
