package statushook

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/statushook/internal/logging"
	"github.com/pboyd/statushook/native"
)

type installCall struct {
	agent  native.Agent
	kind   int32
	script int32
	fn     native.Handle
}

// fakeHost stands in for the host's entry point and for the installer that
// puts the shim in front of it.
type fakeHost struct {
	mu       sync.Mutex
	calls    []installCall
	installs int
	shim     SetStatusFunc
	onSet    func()
}

func (f *fakeHost) Install(shim SetStatusFunc) (SetStatusFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.installs++
	f.shim = shim
	return f.setStatusFunc, nil
}

func (f *fakeHost) setStatusFunc(agent native.Agent, statusKind, subScript *Value, fn native.Handle) {
	f.mu.Lock()
	f.calls = append(f.calls, installCall{agent, statusKind.Int32(), subScript.Int32(), fn})
	onSet := f.onSet
	f.mu.Unlock()

	if onSet != nil {
		onSet()
	}
}

// set calls the entry point the way a module would.
func (f *fakeHost) set(agent native.Agent, kind, script int32, fn native.Handle) {
	k, s := NewInt(kind), NewInt(script)
	f.shim(agent, &k, &s, fn)
}

func (f *fakeHost) lastCall(t *testing.T) installCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func newTestHook(t *testing.T) (*Hook, *fakeHost, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Log = logging.Config{Level: "debug", Output: &buf}

	host := &fakeHost{}
	h := New(cfg, host)
	h.OnModuleLoad(ModuleInfo{Name: DefaultSentinelModule, Base: 0x100})

	installed, err := h.Installed()
	require.NoError(t, err)
	require.True(t, installed)

	buf.Reset()
	return h, host, &buf
}

func logLines(buf *bytes.Buffer) []string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

//go:noinline
func originalWait(_ native.Agent, ctx uint64) Value {
	return NewInt(int64(ctx) + 100)
}

func overrideWait(native.Agent, uint64) Value {
	return NewInt(-1)
}

func TestHook_SentinelInstallsOnce(t *testing.T) {
	h, host, _ := newTestHook(t)

	h.OnModuleLoad(ModuleInfo{Name: DefaultSentinelModule, Base: 0x200})

	assert.Equal(t, 1, host.installs)
	assert.Empty(t, h.Modules().Ranges(), "the sentinel module is never recorded")
}

func TestHook_Substitution(t *testing.T) {
	assert := assert.New(t)
	h, host, _ := newTestHook(t)

	h.OnModuleLoad(ModuleInfo{Name: "fx", Base: 0x1000, Size: 0x1000})
	h.OnModuleLoad(ModuleInfo{Name: "other", Base: 0x5000, Size: 0x1000})
	h.ReplaceStatusFunc("fx", 5, 2, overrideWait)

	agent := native.AgentOf(&struct{ id int }{id: 1})
	host.set(agent, 5, 2, 0x1500)

	call := host.lastCall(t)
	assert.Equal(native.HandleOf(overrideWait), call.fn)
	assert.Equal(agent, call.agent)
	assert.Equal(int32(5), call.kind)
	assert.Equal(int32(2), call.script)

	entries := h.Handlers().Entries("fx")
	require.Len(t, entries, 1)
	assert.Equal(native.Handle(0x1500), entries[0].Original)

	assert.Equal(Stats{Substituted: 1}, h.Stats())
}

func TestHook_Passthrough(t *testing.T) {
	h, host, buf := newTestHook(t)

	h.OnModuleLoad(ModuleInfo{Name: "fx", Base: 0x1000, Size: 0x1000})
	h.OnModuleLoad(ModuleInfo{Name: "bare", Base: 0x5000, Size: 0x1000})
	h.ReplaceStatusFunc("fx", 5, 2, overrideWait)
	buf.Reset()

	tests := []struct {
		name   string
		kind   int32
		script int32
		fn     native.Handle
	}{
		{"no owning module", 5, 2, 0x7000},
		{"owner without overrides", 5, 2, 0x5500},
		{"key mismatch", 5, 3, 0x1500},
		{"address on range start", 5, 2, 0x1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host.set(nil, tt.kind, tt.script, tt.fn)
			assert.Equal(t, tt.fn, host.lastCall(t).fn)
		})
	}

	assert.Equal(t, Stats{Passthrough: uint64(len(tests))}, h.Stats())
	assert.False(t, h.Handlers().Entries("fx")[0].Captured)
	assert.Empty(t, logLines(buf), "misses are silent")
}

func TestHook_CallOriginal(t *testing.T) {
	assert := assert.New(t)
	h, host, buf := newTestHook(t)

	orig := native.HandleOf(originalWait)
	h.OnModuleLoad(ModuleInfo{Name: "fx", Base: orig.Addr() - 0x10, Size: 0x100})
	h.ReplaceStatusFunc("fx", 5, 2, overrideWait)

	host.set(nil, 5, 2, orig)
	require.Equal(t, native.HandleOf(overrideWait), host.lastCall(t).fn)
	buf.Reset()

	assert.Equal(int64(107), h.CallOriginal("fx", 5, 2, nil, 7).Int())
	assert.Empty(logLines(buf))
}

func TestHook_CallOriginal_Stub(t *testing.T) {
	h, _, buf := newTestHook(t)
	h.ReplaceStatusFunc("fx", 5, 2, overrideWait)
	buf.Reset()

	v := h.CallOriginal("fx", 5, 2, nil, 7)
	assert.Equal(t, NewInt(0), v)

	lines := logLines(buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "original func was not set")
}

func TestHook_CallOriginal_UnknownOwner(t *testing.T) {
	h, _, buf := newTestHook(t)

	v := h.CallOriginal("nobody", 5, 2, nil, 7)
	assert.Equal(t, NewInt(0), v)

	lines := logLines(buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"error"`)
	assert.Contains(t, lines[0], "could not find original function")
}

func TestHook_CallOriginal_UnknownKey(t *testing.T) {
	h, _, buf := newTestHook(t)
	h.ReplaceStatusFunc("fx", 5, 2, overrideWait)
	buf.Reset()

	v := h.CallOriginal("fx", 9, 9, nil, 7)
	assert.Equal(t, NewInt(0), v)
	assert.Empty(t, logLines(buf))
}

func TestHook_DuplicateRegistration(t *testing.T) {
	assert := assert.New(t)
	h, host, buf := newTestHook(t)

	h.OnModuleLoad(ModuleInfo{Name: "fx", Base: 0x1000, Size: 0x1000})
	h.ReplaceStatusFunc("fx", 5, 2, overrideWait)
	buf.Reset()
	h.ReplaceStatusFunc("fx", 5, 2, waitOverride2)

	assert.Contains(buf.String(), "will never run")
	assert.Equal(2, h.Handlers().Len("fx"))

	host.set(nil, 5, 2, 0x1500)
	assert.Equal(native.HandleOf(overrideWait), host.lastCall(t).fn)
}

func TestHook_NilOverrideIgnored(t *testing.T) {
	h, _, buf := newTestHook(t)

	h.ReplaceStatusFunc("fx", 1, 0, nil)

	assert.Zero(t, h.Handlers().Len("fx"))
	assert.Contains(t, buf.String(), "ignoring nil status func")
}

func TestHook_ModuleReload(t *testing.T) {
	h, _, _ := newTestHook(t)

	h.OnModuleLoad(ModuleInfo{Name: "fx", Base: 0x1000, Size: 0x1000})
	h.OnModuleLoad(ModuleInfo{Name: "fx", Base: 0x9000, Size: 0x1000})

	ranges := h.Modules().Ranges()
	require.Len(t, ranges, 1)
	assert.Equal(t, uintptr(0x9000), ranges[0].Start)
}

func TestHook_OverlapWarning(t *testing.T) {
	h, _, buf := newTestHook(t)
	h.SetVerbose(false)

	h.OnModuleLoad(ModuleInfo{Name: "early", Base: 0x1000})
	assert.Empty(t, logLines(buf))

	h.OnModuleLoad(ModuleInfo{Name: "late", Base: 0x2000, Size: 0x1000})
	lines := logLines(buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[0], "early")
}

func TestHook_Verbosity(t *testing.T) {
	h, _, buf := newTestHook(t)

	h.SetVerbose(false)
	h.ReplaceStatusFunc("quiet", 1, 0, overrideWait)
	h.OnModuleLoad(ModuleInfo{Name: "quiet", Base: 0x1000, Size: 0x10})
	assert.Empty(t, logLines(buf))

	h.SetVerbose(true)
	h.ReplaceStatusFunc("loud", 1, 0, overrideWait)
	assert.Len(t, logLines(buf), 1)
}

func TestHook_InstallFailure(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Log = logging.Config{Level: "debug", Output: &buf}

	boom := errors.New("boom")
	h := New(cfg, InstallerFunc(func(SetStatusFunc) (SetStatusFunc, error) {
		return nil, boom
	}))

	installed, err := h.Installed()
	assert.False(t, installed)
	assert.NoError(t, err)

	h.OnModuleLoad(ModuleInfo{Name: DefaultSentinelModule})
	installed, err = h.Installed()
	assert.False(t, installed)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "unable to install status hook")
}

func TestHook_NoInstaller(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log = logging.Config{Level: "debug", Output: &bytes.Buffer{}}

	h := New(cfg, nil)
	h.OnModuleLoad(ModuleInfo{Name: DefaultSentinelModule})

	_, err := h.Installed()
	assert.ErrorIs(t, err, ErrNoInstaller)
}

func TestHook_CustomSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SentinelModule = "loader"
	cfg.Log = logging.Config{Level: "debug", Output: &bytes.Buffer{}}

	host := &fakeHost{}
	h := New(cfg, host)

	h.OnModuleLoad(ModuleInfo{Name: DefaultSentinelModule, Base: 0x1000, Size: 0x10})
	assert.Zero(t, host.installs)
	assert.Len(t, h.Modules().Ranges(), 1)

	h.OnModuleLoad(ModuleInfo{Name: "loader"})
	assert.Equal(t, 1, host.installs)
}

func TestHook_ShimCalledDuringInstall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log = logging.Config{Level: "debug", Output: &bytes.Buffer{}}

	host := &fakeHost{}
	done := make(chan struct{})

	h := New(cfg, InstallerFunc(func(shim SetStatusFunc) (SetStatusFunc, error) {
		host.shim = shim
		// The entry point is live before Install returns.
		go func() {
			defer close(done)
			host.set(nil, 1, 0, 0x42)
		}()
		return host.setStatusFunc, nil
	}))
	h.OnModuleLoad(ModuleInfo{Name: DefaultSentinelModule})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shim never forwarded")
	}
	assert.Equal(t, native.Handle(0x42), host.lastCall(t).fn)
}

func TestHook_ForwardMayReenter(t *testing.T) {
	h, host, _ := newTestHook(t)
	h.OnModuleLoad(ModuleInfo{Name: "fx", Base: 0x1000, Size: 0x1000})
	h.ReplaceStatusFunc("fx", 5, 2, overrideWait)

	// The host loading another module from inside its entry point must not
	// deadlock on either registry.
	var once sync.Once
	host.onSet = func() {
		once.Do(func() {
			h.OnModuleLoad(ModuleInfo{Name: "nested", Base: 0x9000, Size: 0x100})
			h.ReplaceStatusFunc("nested", 1, 1, overrideWait)
			h.CallOriginal("nested", 1, 1, nil, 0)
		})
	}

	host.set(nil, 5, 2, 0x1500)

	_, ok := h.Modules().Get("nested")
	assert.True(t, ok)
}
