package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"PerpHelm/internal/domain/models"
	"PerpHelm/pkg/logger"
	"PerpHelm/pkg/util"
)

// macroEventMessage is the wire shape of one scheduled-event update.
// At accepts RFC3339 or unix seconds; calendar feeds disagree on this.
type macroEventMessage struct {
	Name string `json:"name"`
	At   string `json:"at"`
}

// MacroEventsHandler consumes scheduled macro events (CPI prints, FOMC,
// large unlocks) and feeds them into the regime detector's lock
// calendar.
type MacroEventsHandler struct {
	topic    string
	detector *RegimeDetector
	log      *logger.Logger
}

func NewMacroEventsHandler(topic string, detector *RegimeDetector, log *logger.Logger) *MacroEventsHandler {
	return &MacroEventsHandler{
		topic:    topic,
		detector: detector,
		log:      log,
	}
}

func (h *MacroEventsHandler) Topic() string { return h.topic }

func (h *MacroEventsHandler) Handle(_ context.Context, payload []byte) error {
	var msg macroEventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("macro event decode: %w", err)
	}
	if msg.Name == "" {
		return fmt.Errorf("macro event missing name")
	}
	at, ok := util.ParseTime(msg.At)
	if !ok {
		return fmt.Errorf("macro event %s: unparseable time %q", msg.Name, msg.At)
	}

	h.detector.AddMacroEvent(models.MacroEvent{Name: msg.Name, At: at})
	h.log.Info("macro event scheduled",
		logger.String("event", msg.Name),
		logger.Any("at", at))
	return nil
}
