package enums

import "fmt"

// QueueType maps to the queue_type enum in Postgres.
type QueueType string

const (
	QueueCaja           QueueType = "CAJA"
	QueuePersonalBanker QueueType = "PERSONAL_BANKER"
	QueueEmpresas       QueueType = "EMPRESAS"
	QueueGerencia       QueueType = "GERENCIA"
)

var validQueueTypes = []QueueType{
	QueueCaja,
	QueuePersonalBanker,
	QueueEmpresas,
	QueueGerencia,
}

// IsValid reports whether the value matches the canonical queue_type enum.
func (q QueueType) IsValid() bool {
	for _, candidate := range validQueueTypes {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQueueType converts raw input into QueueType.
func ParseQueueType(value string) (QueueType, error) {
	for _, candidate := range validQueueTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue type %q", value)
}

// DisplayName returns the human-readable queue label.
func (q QueueType) DisplayName() string {
	switch q {
	case QueueCaja:
		return "Caja"
	case QueuePersonalBanker:
		return "Personal Banker"
	case QueueEmpresas:
		return "Empresas"
	case QueueGerencia:
		return "Gerencia"
	default:
		return string(q)
	}
}

// AvgServiceMinutes returns the average attention time used for wait estimates.
func (q QueueType) AvgServiceMinutes() int {
	switch q {
	case QueueCaja:
		return 5
	case QueuePersonalBanker:
		return 15
	case QueueEmpresas:
		return 20
	case QueueGerencia:
		return 30
	default:
		return 10
	}
}

// NumberPrefix returns the ticket number prefix for the queue.
func (q QueueType) NumberPrefix() byte {
	switch q {
	case QueuePersonalBanker:
		return 'P'
	case QueueEmpresas:
		return 'E'
	case QueueGerencia:
		return 'G'
	default:
		return 'C'
	}
}

// QueueTypes returns the canonical queue types in priority order.
func QueueTypes() []QueueType {
	out := make([]QueueType, len(validQueueTypes))
	copy(out, validQueueTypes)
	return out
}
