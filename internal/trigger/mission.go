package trigger

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sandeepkv93/alarmd/internal/model"
)

const (
	DefaultShakeTarget = 10
	memoryLength       = 6
)

// MissionEvaluator is one dismissal round.
type MissionEvaluator interface {
	Kind() model.MissionKind
	Prompt() string
	// Submit checks an answer. A non-nil error means the mission cannot be
	// evaluated at all, not that the answer was wrong.
	Submit(answer string) (bool, error)
	IsSatisfied() bool
}

type BoardConfig struct {
	// Rand drives generated puzzles. Nil seeds from the clock.
	Rand        *rand.Rand
	ShakeTarget int
	// BarcodeCode is the code the barcode mission expects. Empty disables
	// the mission on this host.
	BarcodeCode string
	// PhotoCheck verifies a submitted photo reference. Nil disables the
	// photo mission on this host.
	PhotoCheck func(ref string) (bool, error)
}

// Board is the in-process MissionGatePort.
type Board struct {
	mu   sync.Mutex
	cfg  BoardConfig
	rng  *rand.Rand
	sets map[string]*missionSet
}

type missionSet struct {
	alarmID string
	rounds  []*round
	pos     int
}

type round struct {
	kind model.MissionKind
	eval MissionEvaluator
	err  error
}

var _ MissionGatePort = (*Board)(nil)

func NewBoard(cfg BoardConfig) *Board {
	rng := cfg.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if cfg.ShakeTarget <= 0 {
		cfg.ShakeTarget = DefaultShakeTarget
	}
	return &Board{cfg: cfg, rng: rng, sets: make(map[string]*missionSet)}
}

func (b *Board) Open(setID, alarmID string, missions []model.MissionKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := &missionSet{alarmID: alarmID, rounds: make([]*round, 0, len(missions))}
	for _, kind := range missions {
		eval, err := b.newEvaluator(kind)
		set.rounds = append(set.rounds, &round{kind: kind, eval: eval, err: err})
	}
	b.sets[setID] = set
	return nil
}

func (b *Board) IsSatisfied(setID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[setID]
	if !ok {
		return false, ErrUnknownMissionSet
	}
	set.advance()
	if set.pos >= len(set.rounds) {
		return true, nil
	}
	if r := set.rounds[set.pos]; r.err != nil {
		return false, &MissionGateError{AlarmID: set.alarmID, Mission: r.kind, Err: r.err}
	}
	return false, nil
}

func (b *Board) Prompt(setID string) (MissionPrompt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[setID]
	if !ok {
		return MissionPrompt{}, false
	}
	return set.prompt()
}

func (b *Board) Submit(setID, answer string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[setID]
	if !ok {
		return false, ErrUnknownMissionSet
	}
	set.advance()
	if set.pos >= len(set.rounds) {
		return true, nil
	}
	r := set.rounds[set.pos]
	if r.err != nil {
		return false, &MissionGateError{AlarmID: set.alarmID, Mission: r.kind, Err: r.err}
	}
	passed, err := r.eval.Submit(answer)
	if err != nil {
		r.err = err
		return false, &MissionGateError{AlarmID: set.alarmID, Mission: r.kind, Err: err}
	}
	set.advance()
	return passed, nil
}

// Fail marks the current round as unevaluable.
func (b *Board) Fail(setID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[setID]
	if !ok {
		return
	}
	set.advance()
	if set.pos < len(set.rounds) && set.rounds[set.pos].err == nil {
		set.rounds[set.pos].err = err
	}
}

func (b *Board) Progress(setID string) MissionProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[setID]
	if !ok {
		return MissionProgress{}
	}
	set.advance()
	out := MissionProgress{Total: len(set.rounds), Done: set.pos}
	if p, ok := set.prompt(); ok {
		out.Current = &p
	}
	if set.pos < len(set.rounds) {
		out.Failed = set.rounds[set.pos].err
	}
	return out
}

func (b *Board) Close(setID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sets, setID)
}

func (s *missionSet) advance() {
	for s.pos < len(s.rounds) {
		r := s.rounds[s.pos]
		if r.err != nil || r.eval == nil || !r.eval.IsSatisfied() {
			return
		}
		s.pos++
	}
}

func (s *missionSet) prompt() (MissionPrompt, bool) {
	if s.pos >= len(s.rounds) {
		return MissionPrompt{}, false
	}
	r := s.rounds[s.pos]
	p := MissionPrompt{Round: s.pos + 1, Total: len(s.rounds), Kind: r.kind}
	switch {
	case r.err != nil:
		p.Text = fmt.Sprintf("%s mission unavailable: %v", r.kind, r.err)
	case r.eval != nil:
		p.Text = r.eval.Prompt()
	}
	return p, true
}

func (b *Board) newEvaluator(kind model.MissionKind) (MissionEvaluator, error) {
	switch kind {
	case model.MissionMath:
		return newMathMission(b.rng), nil
	case model.MissionMemory:
		return newMemoryMission(b.rng), nil
	case model.MissionShake:
		return &shakeMission{target: b.cfg.ShakeTarget}, nil
	case model.MissionBarcode:
		if b.cfg.BarcodeCode == "" {
			return nil, fmt.Errorf("%w: no barcode registered", ErrMissionUnavailable)
		}
		return &barcodeMission{code: b.cfg.BarcodeCode}, nil
	case model.MissionPhoto:
		if b.cfg.PhotoCheck == nil {
			return nil, fmt.Errorf("%w: no camera", ErrMissionUnavailable)
		}
		return &photoMission{check: b.cfg.PhotoCheck}, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidMissionKind, kind)
	}
}

type mathMission struct {
	a, b, c int
	done    bool
}

func newMathMission(rng *rand.Rand) *mathMission {
	return &mathMission{a: 10 + rng.IntN(90), b: 2 + rng.IntN(8), c: 2 + rng.IntN(8)}
}

func (m *mathMission) Kind() model.MissionKind { return model.MissionMath }

func (m *mathMission) Prompt() string {
	return fmt.Sprintf("Solve: %d + %d x %d", m.a, m.b, m.c)
}

func (m *mathMission) answer() int { return m.a + m.b*m.c }

func (m *mathMission) Submit(answer string) (bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return false, nil
	}
	if n == m.answer() {
		m.done = true
	}
	return m.done, nil
}

func (m *mathMission) IsSatisfied() bool { return m.done }

type memoryMission struct {
	sequence string
	done     bool
}

func newMemoryMission(rng *rand.Rand) *memoryMission {
	var sb strings.Builder
	for i := 0; i < memoryLength; i++ {
		sb.WriteByte(byte('0' + rng.IntN(10)))
	}
	return &memoryMission{sequence: sb.String()}
}

func (m *memoryMission) Kind() model.MissionKind { return model.MissionMemory }

func (m *memoryMission) Prompt() string {
	return "Repeat the sequence: " + strings.Join(strings.Split(m.sequence, ""), " ")
}

func (m *memoryMission) Submit(answer string) (bool, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == ',' || r == '-' {
			return -1
		}
		return r
	}, answer)
	if cleaned == m.sequence {
		m.done = true
	}
	return m.done, nil
}

func (m *memoryMission) IsSatisfied() bool { return m.done }

// shakeMission counts submissions; every submit is one shake.
type shakeMission struct {
	target int
	count  int
}

func (m *shakeMission) Kind() model.MissionKind { return model.MissionShake }

func (m *shakeMission) Prompt() string {
	return fmt.Sprintf("Shake! %d/%d", m.count, m.target)
}

func (m *shakeMission) Submit(string) (bool, error) {
	if m.count < m.target {
		m.count++
	}
	return m.IsSatisfied(), nil
}

func (m *shakeMission) IsSatisfied() bool { return m.count >= m.target }

type barcodeMission struct {
	code string
	done bool
}

func (m *barcodeMission) Kind() model.MissionKind { return model.MissionBarcode }

func (m *barcodeMission) Prompt() string { return "Scan the registered barcode" }

func (m *barcodeMission) Submit(answer string) (bool, error) {
	if strings.TrimSpace(answer) == m.code {
		m.done = true
	}
	return m.done, nil
}

func (m *barcodeMission) IsSatisfied() bool { return m.done }

type photoMission struct {
	check func(ref string) (bool, error)
	done  bool
}

func (m *photoMission) Kind() model.MissionKind { return model.MissionPhoto }

func (m *photoMission) Prompt() string { return "Take a photo of the registered spot" }

func (m *photoMission) Submit(answer string) (bool, error) {
	ok, err := m.check(strings.TrimSpace(answer))
	if err != nil {
		return false, err
	}
	if ok {
		m.done = true
	}
	return m.done, nil
}

func (m *photoMission) IsSatisfied() bool { return m.done }
