package enums

import "fmt"

// RecoveryType tags how a worker reclaim was triggered.
type RecoveryType string

const (
	RecoveryDeadWorker RecoveryType = "DEAD_WORKER"
	RecoveryManual     RecoveryType = "MANUAL"
)

var validRecoveryTypes = []RecoveryType{
	RecoveryDeadWorker,
	RecoveryManual,
}

// IsValid reports whether the value matches the canonical recovery_type enum.
func (r RecoveryType) IsValid() bool {
	for _, candidate := range validRecoveryTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRecoveryType converts raw input into RecoveryType.
func ParseRecoveryType(value string) (RecoveryType, error) {
	for _, candidate := range validRecoveryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recovery type %q", value)
}
