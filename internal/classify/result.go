package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinURLLength is the shortest URL the gateway will send to the classifier.
const MinURLLength = 10

// Cache lifetimes by verdict.
const (
	PhishingTTL = 7 * 24 * time.Hour
	SafeTTL     = 24 * time.Hour
)

// SensitivityMode selects how strict the classifier's threshold is.
type SensitivityMode string

const (
	Conservative SensitivityMode = "conservative"
	Balanced     SensitivityMode = "balanced"
	Aggressive   SensitivityMode = "aggressive"
)

// ParseSensitivityMode validates mode. An empty mode means Balanced.
func ParseSensitivityMode(mode string) (SensitivityMode, error) {
	switch m := SensitivityMode(strings.ToLower(strings.TrimSpace(mode))); m {
	case "":
		return Balanced, nil
	case Conservative, Balanced, Aggressive:
		return m, nil
	default:
		return "", fmt.Errorf("%w: sensitivity_mode must be one of conservative, balanced, aggressive", ErrInvalidRequest)
	}
}

// ThreatLevel is the classifier's ordered risk category. The backend reports
// it in upper case (CRITICAL, HIGH, ...); it is passed through unchanged.
type ThreatLevel string

const (
	ThreatCritical ThreatLevel = "CRITICAL"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatLow      ThreatLevel = "LOW"
	ThreatSafe     ThreatLevel = "SAFE"
)

// Rank orders threat levels from safe (0) to critical (4). Unknown levels rank -1.
func (t ThreatLevel) Rank() int {
	switch ThreatLevel(strings.ToUpper(string(t))) {
	case ThreatCritical:
		return 4
	case ThreatHigh:
		return 3
	case ThreatMedium:
		return 2
	case ThreatLow:
		return 1
	case ThreatSafe:
		return 0
	default:
		return -1
	}
}

// Request is a validated classification request.
type Request struct {
	URL  string
	Mode SensitivityMode
}

// NewRequest normalizes and validates a raw URL and sensitivity mode.
func NewRequest(rawURL, mode string) (Request, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return Request{}, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if len(u) < MinURLLength {
		return Request{}, fmt.Errorf("%w: url must be at least %d characters", ErrInvalidRequest, MinURLLength)
	}
	m, err := ParseSensitivityMode(mode)
	if err != nil {
		return Request{}, err
	}
	return Request{URL: u, Mode: m}, nil
}

// Result is a verdict for a single URL. Details and PerformanceMetrics are
// opaque documents from the classifier and are stored byte-for-byte.
type Result struct {
	URL                string          `json:"url"`
	IsPhishing         bool            `json:"is_phishing"`
	Confidence         float64         `json:"confidence"`
	ThreatLevel        ThreatLevel     `json:"threat_level"`
	SensitivityMode    SensitivityMode `json:"sensitivity_mode"`
	ThresholdUsed      float64         `json:"threshold_used"`
	Details            json.RawMessage `json:"details"`
	LatencyMs          float64         `json:"latency_ms"`
	Cached             bool            `json:"cached"`
	Timestamp          time.Time       `json:"timestamp"`
	PerformanceMetrics json.RawMessage `json:"performance_metrics,omitempty"`
	ModelVersion       string          `json:"model_version"`
}

// CacheTTL returns how long the result may be served from cache.
func (r *Result) CacheTTL() time.Duration {
	if r.IsPhishing {
		return PhishingTTL
	}
	return SafeTTL
}

// ErrIncompleteVerdict is returned by DecodeResult for documents that decode
// but do not carry a usable verdict.
var ErrIncompleteVerdict = errors.New("incomplete verdict")

// DecodeResult parses a verdict document. is_phishing, confidence and a known
// threat_level are required, and confidence must lie in [0, 1].
func DecodeResult(data []byte) (*Result, error) {
	var presence struct {
		IsPhishing *bool    `json:"is_phishing"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	switch {
	case presence.IsPhishing == nil:
		return nil, fmt.Errorf("%w: is_phishing missing", ErrIncompleteVerdict)
	case presence.Confidence == nil:
		return nil, fmt.Errorf("%w: confidence missing", ErrIncompleteVerdict)
	case *presence.Confidence < 0 || *presence.Confidence > 1:
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrIncompleteVerdict, *presence.Confidence)
	case r.ThreatLevel.Rank() < 0:
		return nil, fmt.Errorf("%w: threat_level %q", ErrIncompleteVerdict, r.ThreatLevel)
	}
	return &r, nil
}
