// Package luaselect implements a next-speaker selector scripted in Lua.
//
// A script defines a global function next_speaker(state) returning the name
// of the role that speaks next, "TERMINATE" to end the run, or nil to defer
// to the default linear policy:
//
//	function next_speaker(state)
//	  if state.phase == "Reviewing" and needs_improvement(state.last.content)
//	     and state.review_retries < state.review_budget then
//	    return "CodingAgent"
//	  end
//	  return nil
//	end
//
// The state table carries phase, role, iteration, max_iterations,
// review_retries, review_budget, roles (ordered names) and last (seq,
// source, content). Scripts run with the base, table, string and math
// libraries only; file loading and random numbers are unavailable.
package luaselect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dshills/codecrew/workflow"
	lua "github.com/yuin/gopher-lua"
)

// EntryPoint is the global function a script must define.
const EntryPoint = "next_speaker"

// Selector evaluates a Lua script on every hand-off. It is safe for
// concurrent use; evaluations are serialized on one interpreter.
type Selector struct {
	mu       sync.Mutex
	L        *lua.LState
	fallback workflow.Selector
	logger   *slog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithFallback sets the selector used when the script returns nil.
func WithFallback(sel workflow.Selector) Option {
	return func(s *Selector) {
		if sel != nil {
			s.fallback = sel
		}
	}
}

// WithLogger receives messages written by the script's log() function.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// New loads script and checks that it defines next_speaker.
func New(script string, opts ...Option) (*Selector, error) {
	s := &Selector{
		fallback: workflow.LinearSelector{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)
	s.registerAPI(L)

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("load selector script: %w", err)
	}
	if _, ok := L.GetGlobal(EntryPoint).(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("selector script must define a %q function", EntryPoint)
	}
	s.L = L
	return s, nil
}

// NewFromFile loads a selector script from path.
func NewFromFile(path string, opts ...Option) (*Selector, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selector script: %w", err)
	}
	return New(string(script), opts...)
}

// Close releases the interpreter.
func (s *Selector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
}

// Next implements workflow.Selector.
func (s *Selector) Next(ctx context.Context, state workflow.State, last workflow.Message, registry *workflow.Registry) (workflow.Decision, error) {
	name, err := s.call(ctx, state, last, registry)
	if err != nil {
		return workflow.Decision{}, err
	}

	switch {
	case name == "":
		return s.fallback.Next(ctx, state, last, registry)
	case strings.EqualFold(name, workflow.TerminateVerdict):
		return workflow.Decision{Phase: workflow.PhaseCompleted, Terminate: true, Reason: workflow.ReasonSelectorVerdict}, nil
	}

	phase, ok := workflow.PhaseForRole(name)
	if !ok {
		phase = state.Phase
	}
	return workflow.Decision{Phase: phase, Role: name}, nil
}

func (s *Selector) call(ctx context.Context, state workflow.State, last workflow.Message, registry *workflow.Registry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return "", fmt.Errorf("lua selector is closed")
	}

	L := s.L
	L.SetContext(ctx)
	defer L.RemoveContext()

	top := L.GetTop()
	defer L.SetTop(top)

	L.Push(L.GetGlobal(EntryPoint))
	L.Push(stateTable(L, state, last, registry))
	if err := L.PCall(1, 1, nil); err != nil {
		return "", fmt.Errorf("%s: %w", EntryPoint, err)
	}

	switch ret := L.Get(-1).(type) {
	case *lua.LNilType:
		return "", nil
	case lua.LString:
		return strings.TrimSpace(string(ret)), nil
	default:
		return "", fmt.Errorf("%s returned %s, want string or nil", EntryPoint, ret.Type())
	}
}

func stateTable(L *lua.LState, state workflow.State, last workflow.Message, registry *workflow.Registry) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("phase", lua.LString(state.Phase.String()))
	tbl.RawSetString("role", lua.LString(state.Role))
	tbl.RawSetString("iteration", lua.LNumber(state.Iteration))
	tbl.RawSetString("max_iterations", lua.LNumber(state.MaxIterations))
	tbl.RawSetString("review_retries", lua.LNumber(state.ReviewRetries))
	tbl.RawSetString("review_budget", lua.LNumber(state.ReviewBudget()))

	lastTbl := L.NewTable()
	lastTbl.RawSetString("seq", lua.LNumber(last.Seq))
	lastTbl.RawSetString("source", lua.LString(last.Source))
	lastTbl.RawSetString("content", lua.LString(last.Content))
	tbl.RawSetString("last", lastTbl)

	roles := L.NewTable()
	for _, role := range registry.OrderedRoles() {
		roles.Append(lua.LString(role.Name))
	}
	tbl.RawSetString("roles", roles)
	return tbl
}

// openSafeLibs loads the sandboxed standard libraries. The Open* functions
// push their module tables; the stack is restored before returning.
func openSafeLibs(L *lua.LState) {
	top := L.GetTop()
	defer L.SetTop(top)

	lua.OpenBase(L)
	for _, name := range []string{"loadfile", "dofile", "load", "loadstring", "print", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (s *Selector) registerAPI(L *lua.LState) {
	L.SetGlobal("needs_improvement", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(workflow.DefaultReviewSignal(L.CheckString(1))))
		return 1
	}))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		s.logger.Info("selector script", "msg", L.CheckString(1))
		return 0
	}))
}
