// Package target implements the target registry and four-phase state
// machine (component A of the engine): ping -> test -> run -> analyze.
//
// Grounded on target.c (target_add/target_next/target_start/target_result
// /target_cmdstatus/target_status/target_results) from the original shmux
// implementation, reshaped into Go methods on a Registry instead of the
// original's "current target" global pointer: callers hold the *Target
// they're operating on directly.
package target

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Method selects which external argv-construction strategy applies to a
// target (sh/rsh/ssh1/ssh2/ssh-auto in spec.md's data model).
type Method int

const (
	MethodSH Method = iota
	MethodRSH
	MethodSSH1
	MethodSSH2
	MethodSSH
)

func (m Method) String() string {
	switch m {
	case MethodSH:
		return "sh"
	case MethodRSH:
		return "rsh"
	case MethodSSH1:
		return "ssh1"
	case MethodSSH2:
		return "ssh2"
	case MethodSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

// ParseMethod maps a CLI/config method name (-m flag) to a Method.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "sh":
		return MethodSH, nil
	case "rsh":
		return MethodRSH, nil
	case "ssh1":
		return MethodSSH1, nil
	case "ssh2":
		return MethodSSH2, nil
	case "ssh":
		return MethodSSH, nil
	default:
		return 0, fmt.Errorf("unrecognized method: %s", name)
	}
}

var prefixes = []struct {
	prefix string
	method Method
}{
	{"sh:", MethodSH},
	{"rsh:", MethodRSH},
	{"ssh1:", MethodSSH1},
	{"ssh2:", MethodSSH2},
	{"ssh:", MethodSSH},
}

// Phase/status values, per spec.md section 3.
const (
	Dead     = -1
	None     = 0
	Pinged   = 1
	Tested   = 2
	Ran      = 3
	Analyzed = 4
)

// Result verdicts, per spec.md section 3.
const (
	ResultTimeout = -1
	ResultUnknown = 0
	ResultSuccess = 1
	ResultError   = 2
	ResultFailure = -2
)

// Target is one remote (or local) command target.
type Target struct {
	Index  int
	Name   string // may include "user@host"
	Method Method
	Status int
	Phase  int
	Result int
	When   time.Time
}

// Hostname strips an optional "user@" prefix from Name.
func (t *Target) Hostname() string {
	if i := strings.IndexByte(t.Name, '@'); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// Dead reports whether the target is terminal.
func (t *Target) Dead() bool { return t.Status == Dead }

// Idle reports whether the target is between phases (not currently running
// a phase's child).
func (t *Target) Idle() bool { return t.Status == t.Phase }

// Registry holds all targets for one run and the phase-machine operations.
type Registry struct {
	targets      []*Target
	defaultMeth  Method
}

// NewRegistry creates an empty registry with the given default method,
// used for specs with no explicit sh:/rsh:/ssh:.../ prefix.
func NewRegistry(defaultMethod Method) *Registry {
	return &Registry{defaultMeth: defaultMethod}
}

// Add registers a target spec (possibly prefixed by a method selector) and
// returns the new target. Mirrors target_add's prefix stripping.
func (r *Registry) Add(spec string) *Target {
	method := r.defaultMeth
	name := spec
	for _, p := range prefixes {
		if strings.HasPrefix(spec, p.prefix) {
			method = p.method
			name = spec[len(p.prefix):]
			break
		}
	}
	t := &Target{
		Index:  len(r.targets),
		Name:   name,
		Method: method,
		Status: None,
		Phase:  None,
		Result: ResultUnknown,
	}
	r.targets = append(r.targets, t)
	return t
}

// Len returns the number of registered targets.
func (r *Registry) Len() int { return len(r.targets) }

// All returns every target, in registration order. The returned slice must
// not be mutated by the caller beyond the Target fields themselves.
func (r *Registry) All() []*Target { return r.targets }

// Next returns the lowest-indexed target eligible to enter the given phase
// (status == phase-1 and phase not already started), or false if none is
// ready. Mirrors target_next.
func (r *Registry) Next(phase int) (*Target, bool) {
	if phase <= 0 || phase > Analyzed {
		panic("target: invalid phase")
	}
	for _, t := range r.targets {
		if t.Status == phase-1 && t.Phase != phase {
			return t, true
		}
	}
	return nil, false
}

// Start advances t's phase by one and stamps the phase start time.
// Mirrors target_start.
func (r *Registry) Start(t *Target) {
	if t.Status != t.Phase {
		panic("target: Start called on a non-idle target")
	}
	if t.Phase < None || t.Phase >= Analyzed {
		panic("target: Start called at an invalid phase")
	}
	t.Phase++
	t.When = time.Now()
}

// Result reports the outcome of the phase currently in progress for t.
// On success, status is raised to the now-completed phase; if the target's
// result is already ResultError (whatever phase is completing), phase is
// first bumped to Analyzed, so an errored run skips the analyzer phase, and
// Result is not upgraded (Open Question b). On failure, the target becomes
// Dead/ResultFailure and is terminal. Mirrors target_result.
func (r *Registry) Result(t *Target, ok bool) {
	if t.Status < Dead || t.Status >= Analyzed {
		panic("target: Result called at an invalid status")
	}
	if t.Phase <= None || t.Phase > Analyzed {
		panic("target: Result called at an invalid phase")
	}
	if ok {
		if t.Result == ResultError {
			t.Phase = Analyzed
		}
		t.Status = t.Phase
	} else {
		t.Status = Dead
		t.Result = ResultFailure
	}
}

// CmdStatus records the run-phase verdict without touching phase
// progression. Mirrors target_cmdstatus.
func (r *Registry) CmdStatus(t *Target, v int) {
	if t.Phase != Ran && t.Phase != Analyzed {
		panic("target: CmdStatus called outside the run/analyze phases")
	}
	t.Result = v
}

// Pong finds a target awaiting its ping result. If name is empty, any
// pending ping target is returned; otherwise the target whose hostname
// (case-insensitive) matches name. Mirrors target_pong.
func (r *Registry) Pong(name string) (*Target, bool) {
	for _, t := range r.targets {
		if t.Phase != Pinged || t.Status != None {
			continue
		}
		if name == "" || strings.EqualFold(t.Hostname(), name) {
			return t, true
		}
	}
	return nil, false
}

// ByNum returns the target at the given index.
func (r *Registry) ByNum(n int) (*Target, bool) {
	if n < 0 || n >= len(r.targets) {
		return nil, false
	}
	return r.targets[n], true
}

// ByName finds a target by its exact display name (case-insensitive).
func (r *Registry) ByName(name string) (*Target, bool) {
	for _, t := range r.targets {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// ByNumOrName resolves a "k" console command's target argument: a bare
// number indexes by position, anything else is looked up by name.
func (r *Registry) ByNumOrName(s string) (*Target, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return r.ByNum(n)
	}
	return r.ByName(s)
}

// StatusFilter selects which targets target_status (console 'p'/'r'/'f'/
// 'e'/'s'/'a' commands) reports.
type StatusFilter int

const (
	StatusPending StatusFilter = 1 << iota
	StatusActive
	StatusFailed
	StatusError
	StatusSuccess
	StatusAll = StatusPending | StatusActive | StatusFailed | StatusError | StatusSuccess
)

// StatusLines renders one line per target matching filter, in the same
// classification order as target_status: failed/timed-out > error >
// success > active > pending.
func (r *Registry) StatusLines(filter StatusFilter) []string {
	width := len(strconv.Itoa(len(r.targets) - 1))
	if width < 1 {
		width = 1
	}
	var lines []string
	for i, t := range r.targets {
		switch {
		case t.Result == ResultFailure && filter&StatusFailed != 0:
			lines = append(lines, fmt.Sprintf(" [%*d]            failed: %s", width, i, t.Name))
		case t.Result == ResultTimeout && filter&StatusFailed != 0:
			lines = append(lines, fmt.Sprintf(" [%*d]        timed out: %s", width, i, t.Name))
		case t.Result == ResultError && filter&StatusError != 0:
			lines = append(lines, fmt.Sprintf(" [%*d]             error: %s", width, i, t.Name))
		case t.Result == ResultSuccess && filter&StatusSuccess != 0:
			lines = append(lines, fmt.Sprintf(" [%*d]           success: %s", width, i, t.Name))
		case t.Status != t.Phase && filter&StatusActive != 0:
			what := phaseLabel(t.Phase)
			lines = append(lines, fmt.Sprintf(" [%*d]%s: %s [%s]", width, i, what, t.Name, time.Since(t.When).Round(time.Second)))
		case t.Phase < Ran && filter&StatusPending != 0:
			lines = append(lines, fmt.Sprintf(" [%*d]           pending: %s", width, i, t.Name))
		}
	}
	return lines
}

func phaseLabel(phase int) string {
	switch phase {
	case Pinged:
		return "  [pinging] active"
	case Tested:
		return "  [testing] active"
	case Ran:
		return "  [running] active"
	case Analyzed:
		return "[analyzing] active"
	default:
		return "   [unknown] active"
	}
}

// Summary is the final per-run classification, mirroring target_results.
type Summary struct {
	Total      int
	Unknown    int
	Success    int
	Error      int
	Timeout    int
	Failure    int
	FailedNames  []string
	TimedOutNames []string
	ErrorNames    []string
}

// Summarize classifies every target's final Result. Mirrors target_results.
func (r *Registry) Summarize() Summary {
	s := Summary{Total: len(r.targets)}
	for _, t := range r.targets {
		switch t.Result {
		case ResultFailure:
			s.Failure++
			s.FailedNames = append(s.FailedNames, t.Name)
		case ResultTimeout:
			s.Timeout++
			s.TimedOutNames = append(s.TimedOutNames, t.Name)
		case ResultUnknown:
			s.Unknown++
		case ResultSuccess:
			s.Success++
		case ResultError:
			s.Error++
			s.ErrorNames = append(s.ErrorNames, t.Name)
		}
	}
	sort.Strings(s.FailedNames)
	sort.Strings(s.TimedOutNames)
	sort.Strings(s.ErrorNames)
	return s
}

// String renders the "Summary: N failures, N timeouts, ..." line.
func (s Summary) String() string {
	var parts []string
	if s.Failure > 0 {
		parts = append(parts, plural(s.Failure, "failure", "failures"))
	}
	if s.Timeout > 0 {
		parts = append(parts, plural(s.Timeout, "timeout", "timeouts"))
	}
	if s.Unknown > 0 {
		parts = append(parts, fmt.Sprintf("%d unprocessed", s.Unknown))
	}
	if s.Success > 0 {
		parts = append(parts, plural(s.Success, "success", "successes"))
	}
	if s.Error > 0 {
		parts = append(parts, plural(s.Error, "error", "errors"))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Summary: " + strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// Processed renders the "N targets processed (out of M) in S seconds"
// line. Mirrors target_results' leading nprint call: the "(out of M)" is
// dropped when every target reached a terminal result.
func (s Summary) Processed(seconds int) string {
	done := s.Total - s.Unknown
	if s.Unknown > 0 {
		return fmt.Sprintf("%s processed (out of %d) in %s.",
			countWord(done, "target", "targets"), s.Total, secondsWord(seconds))
	}
	return fmt.Sprintf("%s processed in %s.",
		countWord(s.Total, "target", "targets"), secondsWord(seconds))
}

func countWord(n int, one, many string) string {
	if n > 1 {
		return fmt.Sprintf("%d %s", n, many)
	}
	return fmt.Sprintf("%d %s", n, one)
}

func secondsWord(n int) string {
	return countWord(n, "second", "seconds")
}

// NameLines renders the "Failed   : ...", "Timed out: ...", "Error    : ..."
// per-class listings, in the same order target_results prints them. Only
// nonempty classes produce a line.
func (s Summary) NameLines() []string {
	var lines []string
	if len(s.FailedNames) > 0 {
		lines = append(lines, "Failed   : "+strings.Join(s.FailedNames, " "))
	}
	if len(s.TimedOutNames) > 0 {
		lines = append(lines, "Timed out: "+strings.Join(s.TimedOutNames, " "))
	}
	if len(s.ErrorNames) > 0 {
		lines = append(lines, "Error    : "+strings.Join(s.ErrorNames, " "))
	}
	return lines
}
