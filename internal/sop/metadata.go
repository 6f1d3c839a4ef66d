package sop

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/kedaiservis/repair-service/internal/model"
)

// Metadata is the session snapshot embedded in every wa_messages row under the
// "sop" key. The JSON shape is a wire contract and must round-trip exactly.
type Metadata struct {
	Stage        *Stage              `json:"stage"`
	TicketID     *uuid.UUID          `json:"ticketId"`
	LastCommand  *Command            `json:"lastCommand"`
	TicketStatus *model.TicketStatus `json:"ticketStatus"`
}

// rawMetadata accepts any JSON value per field so enum validation can happen
// after decoding instead of failing mid-parse.
type rawMetadata struct {
	Stage        *string `json:"stage"`
	TicketID     *string `json:"ticketId"`
	LastCommand  *string `json:"lastCommand"`
	TicketStatus *string `json:"ticketStatus"`
}

// CoerceMetadata decodes a stored metadata blob into a session snapshot.
// The snapshot may sit under a "sop" key or be the blob itself. Any shape or
// enum violation coerces to the all-null default; this function never fails.
func CoerceMetadata(raw []byte) Metadata {
	var base Metadata
	if len(raw) == 0 {
		return base
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil || outer == nil {
		return base
	}

	container := raw
	if sop, ok := outer["sop"]; ok {
		container = sop
	}

	var fields rawMetadata
	if err := json.Unmarshal(container, &fields); err != nil {
		return base
	}

	out := base
	if fields.Stage != nil {
		stage, ok := NormalizeStage(*fields.Stage)
		if !ok {
			return base
		}
		out.Stage = &stage
	}
	if fields.TicketID != nil {
		id, err := uuid.Parse(*fields.TicketID)
		if err != nil {
			return base
		}
		out.TicketID = &id
	}
	if fields.LastCommand != nil {
		command := Command(*fields.LastCommand)
		if !storableCommands[command] {
			return base
		}
		out.LastCommand = &command
	}
	if fields.TicketStatus != nil {
		status := model.TicketStatus(*fields.TicketStatus)
		if !status.Valid() {
			return base
		}
		out.TicketStatus = &status
	}
	return out
}
