package lua_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/netimp/lua"
	"github.com/samaelod/netimp/types"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func intp(v int) *int { return &v }

func TestReadProfile(t *testing.T) {
	path := writeScript(t, `
return {
	sender_drop = 10,
	receiver_drop = 5,
	data_delay = 200,
	ack_delay = 50,
	status = "lossy uplink",
}
`)

	p, err := lua.ReadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, lua.Profile{
		SenderDrop:   intp(10),
		ReceiverDrop: intp(5),
		DataDelay:    intp(200),
		AckDelay:     intp(50),
		Status:       "lossy uplink",
	}, p)
}

func TestReadProfilePartial(t *testing.T) {
	path := writeScript(t, `
local p = {}
p.data_delay = 100 + 20
return p
`)

	p, err := lua.ReadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, types.Update{DataDelayMs: intp(120)}, p.Update())
	assert.Empty(t, p.Status)
}

func TestReadProfileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "unknown key", src: `return { sender_drop = 1, jitter = 4 }`, want: `unknown key "jitter"`},
		{name: "fraction", src: `return { ack_delay = 2.5 }`, want: "ack_delay must be an integer"},
		{name: "huge number", src: `return { data_delay = 1e300 }`, want: "data_delay is out of range"},
		{name: "string number", src: `return { sender_drop = "ten" }`, want: "sender_drop must be a number"},
		{name: "status type", src: `return { status = 3 }`, want: "status must be a string"},
		{name: "not a table", src: `return 42`, want: "did not return a table"},
		{name: "empty table", src: `return {}`, want: "no settings"},
		{name: "syntax error", src: `return {`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lua.ReadProfile(writeScript(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadProfileReportsEveryProblem(t *testing.T) {
	_, err := lua.ReadProfile(writeScript(t, `return { zeta = 1, alpha = 2 }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "alpha"; unknown key "zeta"`)
}

func TestWriteProfileRoundTrip(t *testing.T) {
	cfg := types.ImpairmentConfig{SenderDropPercent: 12, ReceiverDropPercent: 3, DataDelayMs: 150, AckDelayMs: 0}

	var buf bytes.Buffer
	require.NoError(t, lua.WriteProfile(&buf, cfg, `say "hi"`))
	assert.Contains(t, buf.String(), "profile.sender_drop = 12")
	assert.Contains(t, buf.String(), "return profile")

	p, err := lua.ReadProfile(writeScript(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, types.FullUpdate(cfg), p.Update())
	assert.Equal(t, `say "hi"`, p.Status)
}

func TestWriteProfileWithoutStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, lua.WriteProfile(&buf, types.ImpairmentConfig{}, ""))
	assert.NotContains(t, buf.String(), "profile.status")
}

func TestSaveToRecent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recent")
	cfg := types.ImpairmentConfig{SenderDropPercent: 7}

	first, err := lua.SaveToRecent(dir, "/somewhere/lossy.lua", cfg, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lossy_1.lua"), first)

	second, err := lua.SaveToRecent(dir, "lossy.lua", cfg, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lossy_2.lua"), second)

	unnamed, err := lua.SaveToRecent(dir, "", cfg, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "profile_1.lua"), unnamed)

	p, err := lua.ReadProfile(second)
	require.NoError(t, err)
	assert.Equal(t, intp(7), p.SenderDrop)
}
