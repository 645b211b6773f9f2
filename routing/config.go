package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ConfigKey is the logical name of the blue/green configuration in the
// external store.
const ConfigKey = "blue-green-configuration"

// ErrNotFound is returned by Load when the store has no configuration
// for the lookup key.
var ErrNotFound = errors.New("blue/green configuration not found")

// Variant is one of the two deployments of a blue/green setup.
type Variant int

const (
	Blue Variant = iota
	Green
)

func (v Variant) String() string {
	switch v {
	case Blue:
		return "blue"
	case Green:
		return "green"
	default:
		return "unknown"
	}
}

// Deployment identifies one variant's release and serving endpoint.
type Deployment struct {
	// ID is the opaque identifier of the deployed release, used as
	// the session affinity token.
	ID string `json:"id"`

	// URL is the variant's serving endpoint, either a bare hostname
	// or an absolute URL.
	URL string `json:"url"`
}

// Config is one immutable snapshot of the blue/green configuration. It
// is fetched fresh for every routed request and never cached.
type Config struct {
	Blue                Deployment `json:"blue"`
	Green               Deployment `json:"green"`
	TrafficGreenPercent float64    `json:"trafficGreenPercent"`
	StickySession       bool       `json:"stickySession"`
}

// Deployment returns the deployment of the given variant.
func (c *Config) Deployment(v Variant) Deployment {
	if v == Green {
		return c.Green
	}

	return c.Blue
}

// VariantByID returns the variant whose deployment ID equals the given
// token, matching by exact string equality.
func (c *Config) VariantByID(id string) (Variant, bool) {
	if id == "" {
		return 0, false
	}

	switch id {
	case c.Blue.ID:
		return Blue, true
	case c.Green.ID:
		return Green, true
	}

	return 0, false
}

// Validate rejects snapshots that cannot produce an unambiguous
// routing decision. A percentage outside [0, 100] and two variants
// sharing the same ID make affinity resolution ambiguous and are
// treated as configuration errors.
func (c *Config) Validate() error {
	if c.TrafficGreenPercent < 0 || c.TrafficGreenPercent > 100 {
		return fmt.Errorf("traffic green percent out of range: %v", c.TrafficGreenPercent)
	}

	if c.Blue.ID != "" && c.Blue.ID == c.Green.ID {
		return fmt.Errorf("ambiguous variant id: %s", c.Blue.ID)
	}

	return nil
}

// ParseConfig decodes and validates one configuration snapshot.
func ParseConfig(data []byte) (*Config, error) {
	c := &Config{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to decode blue/green configuration: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// DataClient provides access to the external store holding the
// blue/green configuration. Implementations must treat a missing entry
// as found=false and not as an error.
type DataClient interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
}

// Load fetches the current configuration snapshot from the store. A
// missing entry yields ErrNotFound, a failing lookup or a malformed or
// invalid snapshot yields the underlying error. Callers fail open on
// any error.
func Load(ctx context.Context, c DataClient) (*Config, error) {
	raw, found, err := c.Get(ctx, ConfigKey)
	if err != nil {
		log.Debugf("blue/green configuration lookup failed: %v", err)
		return nil, err
	}

	if !found {
		return nil, ErrNotFound
	}

	return ParseConfig(raw)
}
