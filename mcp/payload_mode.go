package mcp

import (
	"fmt"
	"strings"
)

// PayloadMode selects how binary downloads and uploads cross the MCP
// boundary.
type PayloadMode string

const (
	// PayloadModeDisk streams downloads into the workspace directory and
	// reads uploads from it.
	PayloadModeDisk PayloadMode = "disk"
	// PayloadModeInline returns downloads in the tool result and takes
	// uploads as base64 arguments.
	PayloadModeInline PayloadMode = "inline"
)

// ParsePayloadMode parses a --payload-mode value. Empty selects disk.
func ParsePayloadMode(raw string) (PayloadMode, error) {
	mode := PayloadMode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return PayloadModeDisk, nil
	}
	switch mode {
	case PayloadModeDisk, PayloadModeInline:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid payload mode %q (expected disk|inline)", raw)
	}
}
