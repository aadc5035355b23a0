package voicelive

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	webrtc "github.com/pion/webrtc/v3"
)

// sdpPreamble starts every raw session description (RFC 4566 version line).
const sdpPreamble = "v=0"

// EncodeOffer wraps a raw client SDP offer the way the Voice Live avatar
// handshake expects it: a JSON session description, base64-encoded.
func EncodeOffer(offerSDP string) (string, error) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	body, err := json.Marshal(desc)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// DecodeAnswer extracts the SDP answer from the raw string the service sends
// back. The service has used both a raw SDP and a base64-wrapped JSON
// representation; unexpected encodings fall through to best-effort passthrough
// rather than failing the negotiation.
func DecodeAnswer(raw string) string {
	if strings.HasPrefix(raw, sdpPreamble) {
		return raw
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || !utf8.Valid(decoded) {
		return raw
	}
	text := string(decoded)
	var desc struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(decoded, &desc); err != nil {
		return text
	}
	if desc.SDP == "" {
		return text
	}
	return desc.SDP
}
