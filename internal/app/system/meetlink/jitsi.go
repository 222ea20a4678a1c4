package meetlink

import (
	"context"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const roomAlphabet = "abcdefghijkmnopqrstuvwxyz23456789"

// DefaultJitsiBaseURL is used when no base URL is configured.
const DefaultJitsiBaseURL = "https://meet.jit.si"

// JitsiProvisioner builds room links on a Jitsi deployment. Rooms are created
// on first join, so provisioning only needs an unguessable name.
type JitsiProvisioner struct {
	BaseURL string
}

// NewJitsi returns a provisioner for baseURL (DefaultJitsiBaseURL if empty).
func NewJitsi(baseURL string) *JitsiProvisioner {
	if baseURL == "" {
		baseURL = DefaultJitsiBaseURL
	}
	return &JitsiProvisioner{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (p *JitsiProvisioner) Name() string { return "jitsi" }

// Provision returns a room URL named after the pair plus a random suffix.
func (p *JitsiProvisioner) Provision(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	code, err := gonanoid.Generate(roomAlphabet, 12)
	if err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	return fmt.Sprintf("%s/ih-%s-%s", p.BaseURL, req.PairID.Hex()[18:], code), nil
}
