package mario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/statushook"
	"github.com/pboyd/statushook/internal/host"
)

func TestInit(t *testing.T) {
	f := host.NewFighter(Name)
	Init(f)

	tests := []struct {
		kind, script int32
		ctx          uint64
		want         statushook.Value
	}{
		{StatusWait, ScriptMain, 9, statushook.NewInt(100)},
		{StatusWalk, ScriptMain, 5, statushook.NewInt(205)},
		{StatusAttack, ScriptMain, 1, statushook.NewInt(301)},
		{StatusAttack, ScriptEnd, 0, statushook.NewBool(true)},
		{StatusSpecialN, ScriptMain, 2, statushook.NewNum(3)},
	}

	for _, tc := range tests {
		got, ok := f.RunStatus(tc.kind, tc.script, tc.ctx)
		require.True(t, ok, "%d/%d", tc.kind, tc.script)
		assert.Equal(t, tc.want, got, "%d/%d", tc.kind, tc.script)
	}

	_, ok := f.RunStatus(StatusWalk, ScriptEnd, 0)
	assert.False(t, ok)
}

func TestModule(t *testing.T) {
	info, err := Module().Info()
	require.NoError(t, err)

	assert.Equal(t, Name, info.Name)
	assert.NotZero(t, info.Base)
	assert.NotZero(t, info.Size)
}
