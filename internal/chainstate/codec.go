package chainstate

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/braidnet/braidd/internal/chain"
)

// cutPayload is the wire form of a cut: the hex-encoded header of every tip.
type cutPayload struct {
	Tips []string `json:"tips"`
}

// encodeCut serializes a cut for the engine wire.
func encodeCut(cut chain.Cut) ([]byte, error) {
	payload := cutPayload{Tips: make([]string, 0, len(cut))}
	for _, id := range cut.Chains() {
		tip := cut[id]
		payload.Tips = append(payload.Tips, hex.EncodeToString(tip.Encode()))
	}
	return json.Marshal(payload)
}

// decodeCut parses a cut from the engine wire. Duplicate chains in the tip
// list are rejected.
func decodeCut(data []byte) (chain.Cut, error) {
	var payload cutPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse cut payload: %w", err)
	}

	cut := make(chain.Cut, len(payload.Tips))
	for _, tipHex := range payload.Tips {
		buf, err := hex.DecodeString(tipHex)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tip header hex: %w", err)
		}
		header, err := chain.DecodeHeader(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tip header: %w", err)
		}
		if _, ok := cut[header.Chain]; ok {
			return nil, fmt.Errorf("duplicate chain %d in cut payload", header.Chain)
		}
		cut[header.Chain] = header
	}
	return cut, nil
}
