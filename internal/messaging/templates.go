package messaging

import (
	"fmt"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
)

// RenderTemplate produces the chat text for a ticket milestone. Advisor name
// and module are only meaningful for the your-turn template.
func RenderTemplate(template enums.MessageTemplate, ticket models.Ticket, advisorName string) (string, error) {
	switch template {
	case enums.TemplateTicketCreated:
		return fmt.Sprintf(
			"✅ <b>Ticket Creado</b>\n\nTu número de turno: <b>%s</b>\nPosición en cola: <b>#%d</b>\nTiempo estimado: <b>%d minutos</b>\n\nTe notificaremos cuando estés próximo.",
			ticket.Number, ticket.PositionInQueue, ticket.EstimatedWaitMinutes,
		), nil
	case enums.TemplateUpcomingTurn:
		return fmt.Sprintf(
			"⏰ <b>¡Pronto será tu turno!</b>\n\nTurno: <b>%s</b>\nFaltan aproximadamente %d turnos.\n\nPor favor, acércate a la sucursal.",
			ticket.Number, ticket.PositionInQueue,
		), nil
	case enums.TemplateYourTurn:
		module := 0
		if ticket.ModuleNumber != nil {
			module = *ticket.ModuleNumber
		}
		if advisorName == "" {
			advisorName = ticket.QueueType.DisplayName()
		}
		return fmt.Sprintf(
			"🔔 <b>¡ES TU TURNO %s!</b>\n\nDirígete al módulo: <b>%d</b>\nAsesor: <b>%s</b>",
			ticket.Number, module, advisorName,
		), nil
	default:
		return "", fmt.Errorf("unknown message template %q", template)
	}
}
