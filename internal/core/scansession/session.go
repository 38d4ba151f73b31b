// Package scansession はゲート端末 1 台分のスキャン状態を管理します。
// 同じバッジの連続スキャンを抑止し、カメラを有効にする時期を決めます。
// Session は 1 つのゴルーチンから利用する前提で、内部でロックを取りません。
package scansession

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ogurasousui/site-access/internal/core/admission"
	"github.com/ogurasousui/site-access/internal/core/identity"
	"github.com/ogurasousui/site-access/internal/core/ledger"
)

// DefaultCooldown は同じ識別子の再スキャンを無視する既定の期間です。
const DefaultCooldown = 5 * time.Second

var (
	// ErrGateNotSelected はゲート未選択でスキャンまたは選択解除が行われた場合に返却されます。
	ErrGateNotSelected = errors.New("scansession: gate is not selected")
	// ErrNoPendingEmployee は判定待ちの従業員がいない状態で判定が行われた場合に返却されます。
	ErrNoPendingEmployee = errors.New("scansession: no employee awaiting decision")
)

// State はセッションの状態です。
type State int

const (
	StateIdle State = iota
	StateScanning
	StateAwaitingDecision
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateAwaitingDecision:
		return "awaiting_decision"
	default:
		return "unknown"
	}
}

// Outcome はスキャン 1 回の結果です。
type Outcome int

const (
	// OutcomeResolved は従業員が解決され、判定待ちになったことを表します。
	OutcomeResolved Outcome = iota
	// OutcomeBusy は判定待ちのためスキャンを無視したことを表します。
	OutcomeBusy
	// OutcomeCooldown は直前に扱った識別子のためスキャンを無視したことを表します。
	OutcomeCooldown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeBusy:
		return "busy"
	case OutcomeCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Backend は識別子の解決と判定の記録を提供します。
type Backend interface {
	ScanIdentifier(ctx context.Context, in identity.ResolveInput) (*identity.EmployeeView, error)
	RecordDecision(ctx context.Context, in admission.DecisionInput) (*ledger.Activity, error)
}

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// Config は Session の設定です。
type Config struct {
	Clock    Clock
	Cooldown time.Duration
	// OperatorID は記録に帰属させるオペレーターです。サーバー側で認証情報が優先される場合もあります。
	OperatorID *string
}

// Session は 1 人のオペレーター、1 つのゲート選択に対応するスキャン状態です。
type Session struct {
	backend    Backend
	clock      Clock
	cooldown   time.Duration
	operatorID *string

	state      State
	gateID     string
	pending    *identity.EmployeeView
	identifier string
	handled    map[string]time.Time
}

// New は Idle 状態の Session を生成します。
func New(backend Backend, cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Session{
		backend:    backend,
		clock:      cfg.Clock,
		cooldown:   cfg.Cooldown,
		operatorID: cfg.OperatorID,
		handled:    make(map[string]time.Time),
	}
}

// State は現在の状態を返します。
func (s *Session) State() State {
	return s.state
}

// GateID は選択中のゲートを返します。
func (s *Session) GateID() string {
	return s.gateID
}

// Pending は判定待ちの従業員を返します。
func (s *Session) Pending() *identity.EmployeeView {
	return s.pending
}

// CameraActive はカメラでスキャンを受け付けるべきかを返します。
func (s *Session) CameraActive() bool {
	return s.state == StateScanning
}

// SelectGate はゲートを選択します。Idle からは Scanning へ遷移します。
func (s *Session) SelectGate(gateID string) error {
	id := strings.TrimSpace(gateID)
	if id == "" {
		return ErrGateNotSelected
	}
	s.gateID = id
	if s.state == StateIdle {
		s.state = StateScanning
	}
	return nil
}

// ClearGate はゲート選択を解除し、判定待ちの従業員を破棄して Idle に戻ります。
func (s *Session) ClearGate() {
	s.gateID = ""
	s.clearPending()
	s.state = StateIdle
}

// Scan はカメラが読み取った識別子を処理します。
// 判定待ちの間、または同じ識別子を直前に扱ってから冷却期間内の場合は、エラーにせず無視します。
// 解決に失敗した場合は Scanning のままエラーを返します。
func (s *Session) Scan(ctx context.Context, identifier string) (Outcome, error) {
	if s.state == StateIdle {
		return OutcomeBusy, ErrGateNotSelected
	}

	now := s.clock.Now()
	s.evict(now)

	if s.state == StateAwaitingDecision {
		return OutcomeBusy, nil
	}

	id := strings.TrimSpace(identifier)
	if id == "" {
		return OutcomeBusy, identity.ErrInvalidIdentifier
	}
	if _, ok := s.handled[id]; ok {
		return OutcomeCooldown, nil
	}

	view, err := s.backend.ScanIdentifier(ctx, identity.ResolveInput{Identifier: id, GateID: s.gateID})
	if err != nil {
		return OutcomeBusy, err
	}

	s.handled[id] = now
	s.pending = view
	s.identifier = id
	s.state = StateAwaitingDecision
	return OutcomeResolved, nil
}

// Decide は判定待ちの従業員について判定を記録し、Scanning に戻ります。
// 記録に失敗した場合や入場が拒否された場合は判定待ちのままとし、解決し直さずに再試行できます。
func (s *Session) Decide(ctx context.Context, typ ledger.Type, denialReason string) (*ledger.Activity, error) {
	if s.state != StateAwaitingDecision || s.pending == nil {
		return nil, ErrNoPendingEmployee
	}

	activity, err := s.backend.RecordDecision(ctx, admission.DecisionInput{
		EmployeeID:   s.pending.Employee.ID,
		GateID:       s.gateID,
		Type:         typ,
		OperatorID:   s.operatorID,
		DenialReason: denialReason,
	})
	if err != nil {
		return nil, err
	}

	s.handled[s.identifier] = s.clock.Now()
	s.clearPending()
	s.state = StateScanning
	return activity, nil
}

// Cancel は何も記録せずに判定待ちを取り消し、Scanning に戻ります。
func (s *Session) Cancel() {
	if s.state != StateAwaitingDecision {
		return
	}
	s.clearPending()
	s.state = StateScanning
}

// CooldownSize は冷却中の識別子の数を返します。
func (s *Session) CooldownSize() int {
	return len(s.handled)
}

func (s *Session) evict(now time.Time) {
	for id, at := range s.handled {
		if now.Sub(at) >= s.cooldown {
			delete(s.handled, id)
		}
	}
}

func (s *Session) clearPending() {
	s.pending = nil
	s.identifier = ""
}
