package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "approval timed out",
		Data:    logrus.Fields{"component": "approval", "workspace": "main", "code": "k7m2xp"},
	}
	out, err := (PlainFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2026-01-02T03:04:05Z] [WARNING] [approval] approval timed out code=k7m2xp workspace=main\n", string(out))
}

func TestConfigureJSON(t *testing.T) {
	defer SetRoot(nil)
	SetRoot(logrus.New())

	var buf bytes.Buffer
	require.NoError(t, Configure("debug", "json", &buf))
	Component("server").WithField("addr", "127.0.0.1:0").Debug("listening")

	assert.Contains(t, buf.String(), `"component":"server"`)
}

func TestConfigureRejectsBadInput(t *testing.T) {
	defer SetRoot(nil)
	SetRoot(logrus.New())

	assert.Error(t, Configure("loud", "text", nil), "invalid level")
	assert.Error(t, Configure("info", "xml", nil), "invalid format")
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	e := Component("x")
	assert.Same(t, e, OrDiscard(e))
}
