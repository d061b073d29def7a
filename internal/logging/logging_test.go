package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetup(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	assert.True(t, Setup("DEBUG", "json"))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)

	assert.False(t, Setup("verbose", "text"))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	_, isText := logrus.StandardLogger().Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}
