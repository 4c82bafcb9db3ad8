package types

import (
	"fmt"
	"strings"
	"time"
)

// GatewayTypeHomeAssistant is the only supported gateway type.
const GatewayTypeHomeAssistant = "home_assistant"

// Entity domains the service understands. Other Home Assistant domains pass
// through storage untouched but are not linkable to grows.
const (
	EntityDomainSensor     = "sensor"
	EntityDomainSwitch     = "switch"
	EntityDomainNumber     = "number"
	EntityDomainAutomation = "automation"
)

// LinkableEntityDomains contains the domains that may be linked to a
// grow+stage for monitoring or control.
var LinkableEntityDomains = []string{
	EntityDomainSensor,
	EntityDomainSwitch,
	EntityDomainNumber,
	EntityDomainAutomation,
}

// IsLinkableEntityDomain reports whether entities of the given domain can
// be linked to a grow.
func IsLinkableEntityDomain(domain string) bool {
	for _, d := range LinkableEntityDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// IoTGateway is one configured home-automation gateway owned by a user.
type IoTGateway struct {
	ID     int64 `json:"id,omitempty"`
	UserID int64 `json:"user_id,omitempty"`

	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	APIURL      string `json:"api_url"`
	APIKey      string `json:"api_key,omitempty"`
	IsActive    bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Validate checks the gateway before it is stored.
func (g *IoTGateway) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("gateway name is required")
	}
	if g.Type != GatewayTypeHomeAssistant {
		return fmt.Errorf("unsupported gateway type %q", g.Type)
	}
	if strings.TrimSpace(g.APIURL) == "" {
		return fmt.Errorf("gateway api_url is required")
	}
	return nil
}

// IoTEntity is one Home Assistant entity enabled on a gateway. It may be
// linked to a specific grow and stage; the grow's stage machine treats the
// link as a read-only display grouping and never owns the entity lifecycle.
type IoTEntity struct {
	ID        int64 `json:"id,omitempty"`
	GatewayID int64 `json:"gateway_id"`

	EntityName   string `json:"entity_name"`
	EntityType   string `json:"entity_type,omitempty"`
	FriendlyName string `json:"friendly_name,omitempty"`
	Domain       string `json:"domain"`
	DeviceClass  string `json:"device_class,omitempty"`

	// LinkedGrowID and LinkedStage are zero/empty while the entity is
	// linkable. Both are set together and cleared together.
	LinkedGrowID int64  `json:"linked_grow_id,omitempty"`
	LinkedStage  string `json:"linked_stage,omitempty"`

	LastState   string    `json:"last_state,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Validate checks the entity before it is stored.
func (e *IoTEntity) Validate() error {
	if strings.TrimSpace(e.EntityName) == "" {
		return fmt.Errorf("entity_name is required")
	}
	if strings.TrimSpace(e.Domain) == "" {
		return fmt.Errorf("entity domain is required")
	}
	if e.LinkedStage != "" && !IsValidStageKey(e.LinkedStage) {
		return fmt.Errorf("unknown linked_stage %q", e.LinkedStage)
	}
	return nil
}
