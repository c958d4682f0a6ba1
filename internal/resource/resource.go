// Package resource handles post reference parsing and validation. A post
// reference names the piece of social content a market trades on, in the
// form "{network}:{source_id}".
package resource

import (
	"errors"
	"fmt"
	"regexp"
)

// Supported source networks.
const (
	NetworkReddit    = "reddit"
	NetworkFarcaster = "farcaster"
	NetworkX         = "x"
	NetworkInstagram = "instagram"
	NetworkTwitch    = "twitch"
	NetworkManual    = "manual" // user-pasted URL
)

var validNetworks = map[string]bool{
	NetworkReddit:    true,
	NetworkFarcaster: true,
	NetworkX:         true,
	NetworkInstagram: true,
	NetworkTwitch:    true,
	NetworkManual:    true,
}

// refRegex matches: {network}:{sourceID}
// Example: reddit:1m4xkq2, farcaster:0x3f9a01bc
// Source IDs may themselves contain colons (Farcaster cast URIs do).
var refRegex = regexp.MustCompile(
	`^([a-z]+):([A-Za-z0-9][A-Za-z0-9_.:/-]*)$`,
)

var (
	ErrInvalidRef     = errors.New("resource: invalid post reference format")
	ErrInvalidNetwork = errors.New("resource: unsupported source network")
)

// maxRefLen bounds reference length; source IDs are platform post IDs or
// short URIs, never full page content.
const maxRefLen = 256

// PostRef is a parsed post reference.
type PostRef struct {
	Ref      string `json:"ref"`
	Network  string `json:"network"`
	SourceID string `json:"source_id"`
}

// ParseRef parses and validates a post reference string.
// Format: {network}:{source_id}
func ParseRef(ref string) (*PostRef, error) {
	if len(ref) > maxRefLen {
		return nil, fmt.Errorf("%w: reference exceeds %d bytes", ErrInvalidRef, maxRefLen)
	}

	matches := refRegex.FindStringSubmatch(ref)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {network}:{source_id})", ErrInvalidRef, ref)
	}

	network := matches[1]
	sourceID := matches[2]

	if !validNetworks[network] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}

	return &PostRef{
		Ref:      ref,
		Network:  network,
		SourceID: sourceID,
	}, nil
}
