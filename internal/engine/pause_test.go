package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPauseManager() *PauseManager {
	return NewPauseManager(nil, nil, zap.NewNop())
}

func pauseSignalJSON(t *testing.T, sessionID string, paused bool) string {
	t.Helper()
	raw, err := json.Marshal(PauseSignal{SessionID: sessionID, Paused: paused})
	require.NoError(t, err)
	return string(raw)
}

func TestPauseManager_SignalTogglesSession(t *testing.T) {
	pm := newTestPauseManager()

	pm.handleSignal(pauseSignalJSON(t, "s1", true))
	assert.True(t, pm.IsPaused("s1"))
	assert.False(t, pm.IsPaused("s2"), "сигнал не должен задевать чужие сессии")

	pm.handleSignal(pauseSignalJSON(t, "s1", false))
	assert.False(t, pm.IsPaused("s1"))
}

func TestPauseManager_IgnoresMalformedSignal(t *testing.T) {
	pm := newTestPauseManager()
	pm.handleSignal(pauseSignalJSON(t, "s1", true))

	// Мусор в канале не роняет слушателя и не трогает кэш
	for _, payload := range []string{"", "s1:on", "{", `{"paused":true}`} {
		pm.handleSignal(payload)
	}
	assert.True(t, pm.IsPaused("s1"))
}

func TestPauseManager_ResumeUnknownSessionIsNoop(t *testing.T) {
	pm := newTestPauseManager()
	pm.handleSignal(pauseSignalJSON(t, "ghost", false))
	assert.False(t, pm.IsPaused("ghost"))
}
