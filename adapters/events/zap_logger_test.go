package events

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core)).With(watermill.LogFields{"topic": TopicVerification})

	logger.Info("published", watermill.LogFields{"uuid": "abc"})
	logger.Trace("tick", nil)
	logger.Error("publish failed", errors.New("broker down"), nil)

	entries := logs.All()
	assert.Len(t, entries, 3)
	assert.Equal(t, "watermill", entries[0].LoggerName)
	assert.Equal(t, TopicVerification, entries[0].ContextMap()["topic"])
	assert.Equal(t, "abc", entries[0].ContextMap()["uuid"])
	assert.Equal(t, zap.DebugLevel, entries[1].Level)
	assert.Equal(t, "broker down", entries[2].ContextMap()["error"])
}
