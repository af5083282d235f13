package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacroEventMessageSchedulesLockWindow(t *testing.T) {
	d := newTestDetector(t, &scriptedClassifier{})
	h := NewMacroEventsHandler("events", d, testLogger(t))

	at := time.Now().Add(time.Hour)
	payload := fmt.Sprintf(`{"name":"fomc","at":%q}`, at.Format(time.RFC3339))
	require.NoError(t, h.Handle(context.Background(), []byte(payload)))

	assert.True(t, d.InEventLock(at), "the event window must be locked")
	assert.True(t, d.InEventLock(time.Now()), "lead window covers now")
}

func TestMacroEventAcceptsUnixSeconds(t *testing.T) {
	d := newTestDetector(t, &scriptedClassifier{})
	h := NewMacroEventsHandler("events", d, testLogger(t))

	at := time.Now().Add(90 * time.Minute)
	payload := fmt.Sprintf(`{"name":"cpi","at":"%d"}`, at.Unix())
	require.NoError(t, h.Handle(context.Background(), []byte(payload)))

	assert.True(t, d.InEventLock(at))
}

func TestMacroEventRejectsBadMessages(t *testing.T) {
	d := newTestDetector(t, &scriptedClassifier{})
	h := NewMacroEventsHandler("events", d, testLogger(t))

	assert.Error(t, h.Handle(context.Background(), []byte(`{"at":"2026-09-01T12:00:00Z"}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"name":"cpi","at":"whenever"}`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`not json`)))
}
