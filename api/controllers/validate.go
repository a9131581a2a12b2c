package controllers

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/hmardones/ticketero-backend/pkg/errors"
)

func parseUUIDField(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s", field))
	}
	return id, nil
}
