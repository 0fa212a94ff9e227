package enums

import "fmt"

// MovementType describes the allowed values for the `movement_type` column in stock_movements.
type MovementType string

const (
	MovementTypeInbound    MovementType = "inbound"
	MovementTypeOutbound   MovementType = "outbound"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeTransfer   MovementType = "transfer"
	MovementTypeReturn     MovementType = "return"
	MovementTypeDamage     MovementType = "damage"
	MovementTypeLoss       MovementType = "loss"
)

var validMovementTypes = []MovementType{
	MovementTypeInbound,
	MovementTypeOutbound,
	MovementTypeAdjustment,
	MovementTypeTransfer,
	MovementTypeReturn,
	MovementTypeDamage,
	MovementTypeLoss,
}

// IsValid reports whether the value matches the canonical movement type enum.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementType converts the raw string to MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
