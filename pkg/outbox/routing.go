package outbox

import "github.com/hmardones/ticketero-backend/pkg/enums"

// DefaultRoutingKey receives every event whose queue type is not in the
// routing table, so an unrecognized or legacy value can never fail a publish.
const DefaultRoutingKey = "default-queue"

var routingKeysByQueue = map[enums.QueueType]string{
	enums.QueueCaja:           "caja-queue",
	enums.QueuePersonalBanker: "personal-queue",
	enums.QueueEmpresas:       "empresas-queue",
	enums.QueueGerencia:       "gerencia-queue",
}

// RoutingKeyForQueue maps a queue type to its transport routing key. The
// function is total: unknown types fall back to DefaultRoutingKey.
func RoutingKeyForQueue(queueType enums.QueueType) string {
	if key, ok := routingKeysByQueue[queueType]; ok {
		return key
	}
	return DefaultRoutingKey
}

// RoutingKeys returns every destination the publisher can target, the
// fallback included.
func RoutingKeys() []string {
	keys := make([]string, 0, len(routingKeysByQueue)+1)
	for _, queueType := range enums.QueueTypes() {
		keys = append(keys, routingKeysByQueue[queueType])
	}
	return append(keys, DefaultRoutingKey)
}
