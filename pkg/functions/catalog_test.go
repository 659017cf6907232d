package functions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/webhook-dispatcher/pkg/semver"
)

func namedFunction(tag string, calls *[]string) Function {
	return func(_ *Request, res Response) {
		*calls = append(*calls, tag)
		res.Success(tag)
	}
}

type recordingResponse struct{ result any }

func (r *recordingResponse) Success(result any)        { r.result = result }
func (r *recordingResponse) Error(string)              {}
func (r *recordingResponse) ErrorWithCode(int, string) {}

func TestCatalog_DefineAndGet(t *testing.T) {
	c := NewCatalog()
	var calls []string
	require.NoError(t, c.Define("app1", "sbWebhook", namedFunction("v0", &calls)))

	fn, ok := c.GetFunction("sbWebhook", "app1")
	require.True(t, ok)
	fn(&Request{}, &recordingResponse{})
	assert.Equal(t, []string{"v0"}, calls)

	_, ok = c.GetFunction("sbWebhook", "other-app")
	assert.False(t, ok, "functions are scoped per application")

	_, ok = c.GetValidator("sbWebhook", "app1")
	assert.False(t, ok)
}

func TestCatalog_VersionResolution(t *testing.T) {
	c := NewCatalog()
	var calls []string
	require.NoError(t, c.Define("app1", "orders", namedFunction("1.0.0", &calls), WithVersion("1.0.0")))
	require.NoError(t, c.Define("app1", "orders", namedFunction("1.4.0", &calls), WithVersion("1.4.0")))
	require.NoError(t, c.Define("app1", "orders", namedFunction("2.0.0", &calls), WithVersion("2.0.0")))
	require.NoError(t, c.Define("app1", "orders", namedFunction("3.0.0", &calls), WithVersion("3.0.0"), WithStatus(semver.StatusDisabled)))

	tests := map[string]string{
		"orders":        "2.0.0",
		"orders@1":      "1.4.0",
		"orders@~1.0.0": "1.0.0",
		"orders@^2.0.0": "2.0.0",
	}
	for ref, want := range tests {
		d, ok := c.Lookup(ref, "app1")
		require.True(t, ok, ref)
		assert.Equal(t, want, d.Version, ref)
	}

	_, ok := c.Lookup("orders@3", "app1")
	assert.False(t, ok, "disabled versions are never resolved")
}

func TestCatalog_ValidatorAttached(t *testing.T) {
	c := NewCatalog()
	var calls []string
	v := func(*Request) (bool, error) { return false, nil }
	require.NoError(t, c.Define("app1", "guarded", namedFunction("g", &calls), WithValidator(v)))

	got, ok := c.GetValidator("guarded", "app1")
	require.True(t, ok)
	pass, err := got(&Request{})
	assert.NoError(t, err)
	assert.False(t, pass)
}

func TestCatalog_DefineRejectsBadInput(t *testing.T) {
	c := NewCatalog()
	var calls []string
	assert.Error(t, c.Define("app1", "ok", nil))
	assert.Error(t, c.Define("", "ok", namedFunction("x", &calls)))
	assert.Error(t, c.Define("app1", "bad name", namedFunction("x", &calls)))
	assert.Error(t, c.Define("app1", "ok", namedFunction("x", &calls), WithVersion("latest")))
}

func TestCatalog_ReplaceKeepsOtherSources(t *testing.T) {
	c := NewCatalog()
	var calls []string
	require.NoError(t, c.Define("app1", "local", namedFunction("local", &calls)))

	c.Replace("app1", "comms", []Definition{
		{Name: "remoteA", Version: "1.0.0", Function: namedFunction("a", &calls)},
		{Name: "remoteB", Version: "1.0.0", Function: namedFunction("b", &calls)},
	})
	assert.Equal(t, []string{"local", "remoteA", "remoteB"}, c.Names("app1"))

	c.Replace("app1", "comms", []Definition{
		{Name: "remoteB", Version: "1.1.0", Function: namedFunction("b2", &calls)},
		{Name: "broken", Version: "nope", Function: namedFunction("x", &calls)},
	})
	assert.Equal(t, []string{"local", "remoteB"}, c.Names("app1"))

	d, ok := c.Lookup("remoteB", "app1")
	require.True(t, ok)
	assert.Equal(t, "1.1.0", d.Version)
	assert.Equal(t, "comms", d.Source)
}

func TestErrors_Classification(t *testing.T) {
	unknown := UnknownFunction("doesNotExist")
	assert.Equal(t, KindUnknownFunction, unknown.Kind)
	assert.Equal(t, CodeScriptFailed, unknown.Code)
	assert.Contains(t, unknown.Message, `"doesNotExist"`)

	invalid := ValidationFailed("guarded")
	assert.Equal(t, CodeValidationError, invalid.Code)
	assert.Contains(t, invalid.Message, "guarded")

	wrapped := LoggingFault("fn", assert.AnError)
	fe, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindLoggingFault, fe.Kind)
	assert.ErrorIs(t, wrapped, assert.AnError)

	_, ok = AsError(assert.AnError)
	assert.False(t, ok)
}
