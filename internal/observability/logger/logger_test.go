package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestFrom_FallsBackToGlobal(t *testing.T) {
	nop := zap.NewNop()
	Replace(nop)
	assert.Same(t, nop, From(context.Background()))

	scoped := zap.NewExample()
	ctx := ToContext(context.Background(), scoped)
	assert.Same(t, scoped, From(ctx))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel(" DEBUG "))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestTokenHint_HidesToken(t *testing.T) {
	f := TokenHint("eyJhbGciOiJIUzI1NiJ9.payload.signature")
	assert.Equal(t, "***nature", f.String)
	assert.Equal(t, "***", TokenHint("abc").String)
}

func TestInit_ProdWritesJSONToOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "audit.log")
	Init(Config{Env: "prod", Level: "warn", ServiceName: "tokenauthority", Output: []string{out}})
	t.Cleanup(func() { Replace(zap.NewNop()) })

	L().Info("dropped")
	L().Warn("kept", ClientID("acme"))
	require.NoError(t, Sync())

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dropped")
	assert.Contains(t, string(b), `"msg":"kept"`)
	assert.Contains(t, string(b), `"service":"tokenauthority"`)
}
