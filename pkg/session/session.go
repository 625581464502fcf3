package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"

	errs "feedharvest/pkg/errors"
	"feedharvest/pkg/models"
)

// Validity is the tri-state outcome of a session probe
type Validity int

const (
	// Indeterminate means the probe was throttled or failed in transit
	Indeterminate Validity = iota
	Valid
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "indeterminate"
	}
}

// Client is the capability shared by every platform client
type Client interface {
	Platform() models.Platform
	Validate(ctx context.Context) Validity
}

// ClassifyValidation maps a probe failure to a validity. Throttling,
// server errors and transport failures say nothing about the cookies, so
// they are Indeterminate; everything else is a definitive Invalid.
func ClassifyValidation(err error) Validity {
	if err == nil {
		return Valid
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Indeterminate
	}
	switch errs.TypeOf(err) {
	case errs.ErrorTypeRateLimit, errs.ErrorTypeServerError, errs.ErrorTypeNetwork:
		return Indeterminate
	default:
		return Invalid
	}
}

// NewHTTPClient returns a client whose transport mimics a browser TLS
// handshake
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{
		Timeout:   timeout,
		Transport: cloudflarebp.AddCloudFlareByPass(transport),
	}
}
