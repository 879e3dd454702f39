// Package toolpack signs and verifies tool-pack manifests: a declarative
// {name, version, tools, metadata} bundle plus an HMAC-SHA256 signature over
// its canonical JSON encoding.
package toolpack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
)

// Manifest describes a named, versioned bundle of tools a registry can load.
type Manifest struct {
	Name      string
	Version   string
	Tools     []string
	Metadata  map[string]string
	Signature string
}

// canonicalPayload produces the deterministic JSON encoding that is signed:
// sorted tool list, sorted map keys (guaranteed by encoding/json for map
// values), name/version/tools/metadata only — the signature itself is
// excluded.
func canonicalPayload(m Manifest) ([]byte, error) {
	tools := append([]string(nil), m.Tools...)
	sort.Strings(tools)

	payload := struct {
		Name     string            `json:"name"`
		Version  string            `json:"version"`
		Tools    []string          `json:"tools"`
		Metadata map[string]string `json:"metadata"`
	}{
		Name:     m.Name,
		Version:  m.Version,
		Tools:    tools,
		Metadata: m.Metadata,
	}
	return json.Marshal(payload)
}

// Sign returns a copy of m with Signature set to the HMAC-SHA256 (hex) of
// its canonical payload under secret.
func Sign(m Manifest, secret string) (Manifest, error) {
	payload, err := canonicalPayload(m)
	if err != nil {
		return Manifest{}, err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	signed := m
	signed.Signature = hex.EncodeToString(mac.Sum(nil))
	return signed, nil
}

// Verify reports whether m.Signature is the valid HMAC-SHA256 of m's
// canonical payload under secret.
func Verify(m Manifest, secret string) (bool, error) {
	if m.Signature == "" {
		return false, nil
	}
	unsigned := m
	unsigned.Signature = ""
	expected, err := Sign(unsigned, secret)
	if err != nil {
		return false, err
	}
	expectedMAC, err := hex.DecodeString(expected.Signature)
	if err != nil {
		return false, err
	}
	actualMAC, err := hex.DecodeString(m.Signature)
	if err != nil {
		return false, nil
	}
	return hmac.Equal(expectedMAC, actualMAC), nil
}

// DefaultManifestSecret reads the signing secret from the
// AGENT_SDK_TOOL_MANIFEST_SECRET environment variable.
func DefaultManifestSecret() string {
	return os.Getenv("AGENT_SDK_TOOL_MANIFEST_SECRET")
}
