// Package demo implements the per-session store behind the interactive
// demo. A Store owns the three workflow states plus the cross-cutting
// session state, serializes every mutation and publishes one immutable
// Snapshot per mutation to its subscribers.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/Mindburn-Labs/sita/pkg/prefs"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// Director is the autoplay scheduler attached to a store.
type Director interface {
	Start()
	Stop()
	Playing() bool
}

// Timing holds the store's timer durations.
type Timing struct {
	AttackDismiss time.Duration
}

// DefaultTiming returns the production timer durations.
func DefaultTiming() Timing {
	return Timing{AttackDismiss: 5 * time.Second}
}

// Options configures a Store. Zero values get defaults.
type Options struct {
	Clock    clock.Clock
	Machine  *workflow.Machine
	Prefs    prefs.KV
	Logger   *slog.Logger
	Meter    metric.Meter
	Settings *Settings
	Timing   Timing
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Store is the demo session store. All methods are safe for concurrent use.
// Subscribers run synchronously after each mutation, in mutation order, and
// must not call back into the store from the callback.
type Store struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	clk     clock.Clock
	machine *workflow.Machine
	prefs   prefs.KV
	logger  *slog.Logger
	timing  Timing
	metrics storeMetrics

	workflows       map[workflow.ID]workflow.State
	settings        Settings
	active          workflow.ID
	view            ViewMode
	activity        []ActivityEntry
	seq             uint64
	narration       string
	avatar          workflow.Avatar
	tab             IntelTab
	attack          bool
	completed       bool
	completionFired bool
	receipts        []workflow.Receipt
	autoplay        bool
	version         uint64

	// epoch invalidates every pending continuation when bumped.
	epoch       uint64
	chains      map[workflow.ID]*clock.Timer
	attackTimer *clock.Timer
	attackGen   uint64
	closed      bool

	director Director
	subs     []subscriber
	nextSub  int
}

// NewStore builds a store with every workflow idle and restores the
// persisted view mode.
func NewStore(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Machine == nil {
		opts.Machine = workflow.MustNewMachine(opts.Logger)
	}
	if opts.Prefs == nil {
		opts.Prefs = prefs.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("sita.demo")
	}
	if opts.Timing.AttackDismiss <= 0 {
		opts.Timing.AttackDismiss = DefaultTiming().AttackDismiss
	}
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}

	s := &Store{
		clk:      opts.Clock,
		machine:  opts.Machine,
		prefs:    opts.Prefs,
		logger:   opts.Logger.With("component", "demo"),
		timing:   opts.Timing,
		metrics:  newStoreMetrics(opts.Meter),
		settings: settings,
		view:     ViewAuto,
		chains:   make(map[workflow.ID]*clock.Timer),
	}
	s.resetLocked()
	s.view = s.restoreView()
	return s
}

func (s *Store) restoreView() ViewMode {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := s.prefs.Get(ctx, ViewModeKey)
	if err != nil {
		return ViewAuto
	}
	if mode := ViewMode(v); mode.Valid() {
		return mode
	}
	return ViewAuto
}

// Subscribe registers fn for every future snapshot. The returned function
// unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AttachDirector connects the autoplay scheduler. StartAutoplay and
// StopAutoplay delegate to it, and ResetDemo stops it while it plays.
func (s *Store) AttachDirector(d Director) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.director = d
}

// commit publishes the mutation made under s.mu. It must be called with
// s.mu held and releases it.
func (s *Store) commit() {
	s.version++
	snap := s.snapshotLocked()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, sub := range subs {
		sub.fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	wfs := make([]workflow.State, 0, len(s.workflows))
	for _, id := range workflow.All() {
		wfs = append(wfs, s.workflows[id].Clone())
	}
	activity := make([]ActivityEntry, len(s.activity))
	copy(activity, s.activity)
	receipts := make([]workflow.Receipt, len(s.receipts))
	copy(receipts, s.receipts)
	return Snapshot{
		Version:       s.version,
		Workflows:     wfs,
		Settings:      s.settings,
		Active:        s.active,
		ViewMode:      s.view,
		Activity:      activity,
		Narration:     s.narration,
		Avatar:        s.avatar,
		IntelTab:      s.tab,
		AttackVisible: s.attack,
		Completed:     s.completed,
		Receipts:      receipts,
		Autoplay:      s.autoplay,
	}
}

// ChooseMode selects and persists the view mode.
func (s *Store) ChooseMode(mode ViewMode) {
	if !mode.Valid() {
		return
	}
	s.mu.Lock()
	if s.view == mode {
		s.mu.Unlock()
		return
	}
	s.view = mode
	s.commit()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.prefs.Set(ctx, ViewModeKey, string(mode)); err != nil {
		s.logger.Warn("failed to persist view mode", "mode", mode, "error", err)
	}
}

// SetActiveWorkflow selects a workflow; the empty id deselects.
func (s *Store) SetActiveWorkflow(id workflow.ID) {
	if id != "" && !id.Valid() {
		return
	}
	s.mu.Lock()
	if s.active == id {
		s.mu.Unlock()
		return
	}
	s.active = id
	s.commit()
}

// AdvanceWorkflow moves one workflow to its next step.
func (s *Store) AdvanceWorkflow(id workflow.ID) {
	s.mu.Lock()
	if !s.advanceLocked(id, false) {
		s.mu.Unlock()
		return
	}
	s.commit()
}

// ApproveWire approves the wire transfer. Outside the wire transfer's
// approval step this is intentionally a no-op.
func (s *Store) ApproveWire() {
	s.mu.Lock()
	if !s.advanceLocked(workflow.WireTransfer, true) {
		s.mu.Unlock()
		return
	}
	s.commit()
}

// SetAvatarState overrides the avatar display state.
func (s *Store) SetAvatarState(a workflow.Avatar) {
	if !a.Valid() {
		return
	}
	s.mu.Lock()
	if s.avatar == a {
		s.mu.Unlock()
		return
	}
	s.avatar = a
	s.commit()
}

// UpdateSettings applies a partial settings update.
func (s *Store) UpdateSettings(p SettingsPatch) {
	s.mu.Lock()
	next := s.settings.apply(p)
	if next == s.settings {
		s.mu.Unlock()
		return
	}
	s.settings = next
	s.commit()
}

// SetNarration replaces the narration text.
func (s *Store) SetNarration(text string) {
	s.mu.Lock()
	if s.narration == text {
		s.mu.Unlock()
		return
	}
	s.narration = text
	s.commit()
}

// SetIntelTab switches the intelligence panel.
func (s *Store) SetIntelTab(tab IntelTab) {
	if !tab.Valid() {
		return
	}
	s.mu.Lock()
	if s.tab == tab {
		s.mu.Unlock()
		return
	}
	s.tab = tab
	s.commit()
}

// DismissAttack hides the attack alert ahead of its timer.
func (s *Store) DismissAttack() {
	s.mu.Lock()
	if !s.attack {
		s.mu.Unlock()
		return
	}
	s.clearAttackLocked()
	s.commit()
}

// DismissCompletion hides the completion banner. It cannot fire again
// until the demo is reset.
func (s *Store) DismissCompletion() {
	s.mu.Lock()
	if !s.completed {
		s.mu.Unlock()
		return
	}
	s.completed = false
	s.commit()
}

// StartAutoplay starts the attached director, or only raises the flag when
// none is attached.
func (s *Store) StartAutoplay() {
	if d := s.attachedDirector(); d != nil {
		d.Start()
		return
	}
	s.SetAutoplayActive(true)
}

// StopAutoplay stops the attached director, or only lowers the flag.
func (s *Store) StopAutoplay() {
	if d := s.attachedDirector(); d != nil {
		d.Stop()
		return
	}
	s.SetAutoplayActive(false)
}

// SetAutoplayActive records whether autoplay is running.
func (s *Store) SetAutoplayActive(on bool) {
	s.mu.Lock()
	if s.autoplay == on {
		s.mu.Unlock()
		return
	}
	s.autoplay = on
	s.commit()
}

// ResetDemo returns every workflow to idle and clears receipts, the
// activity log, narration and flags in one snapshot. Settings and the view
// mode survive. A playing director is stopped first and every pending
// continuation is invalidated.
func (s *Store) ResetDemo() {
	if d := s.attachedDirector(); d != nil && d.Playing() {
		d.Stop()
	}
	s.mu.Lock()
	s.resetLocked()
	s.metrics.resets.Add(context.Background(), 1)
	s.commit()
}

// HandleKey forwards a keyboard shortcut. Keys typed into a text input are
// ignored.
func (s *Store) HandleKey(key string, inTextInput bool) {
	if inTextInput {
		return
	}
	switch key {
	case "1":
		s.selectAndStart(workflow.RevenueLeak)
	case "2":
		s.selectAndStart(workflow.WireTransfer)
	case "3":
		s.selectAndStart(workflow.BoardBriefing)
	case "Escape":
		s.SetActiveWorkflow("")
	case "r", "R":
		s.ResetDemo()
	}
}

func (s *Store) selectAndStart(id workflow.ID) {
	s.mu.Lock()
	changed := s.active != id
	s.active = id
	if s.workflows[id].Step == workflow.Idle && s.advanceLocked(id, false) {
		changed = true
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	s.commit()
}

// Close cancels every pending timer. The store stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.epoch++
	s.stopTimersLocked()
}

func (s *Store) attachedDirector() Director {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.director
}

func (s *Store) resetLocked() {
	s.epoch++
	s.stopTimersLocked()
	s.workflows = make(map[workflow.ID]workflow.State, 3)
	for _, id := range workflow.All() {
		s.workflows[id] = workflow.Initial(id)
	}
	s.active = ""
	s.activity = []ActivityEntry{}
	s.narration = ""
	s.avatar = workflow.AvatarIdle
	s.tab = TabLedger
	s.attack = false
	s.attackGen++
	s.completed = false
	s.completionFired = false
	s.receipts = []workflow.Receipt{}
	s.autoplay = false
}

func (s *Store) stopTimersLocked() {
	for id, t := range s.chains {
		t.Stop()
		delete(s.chains, id)
	}
	if s.attackTimer != nil {
		s.attackTimer.Stop()
		s.attackTimer = nil
	}
}

func (s *Store) envLocked() workflow.Env {
	now := FrozenInstant
	if !s.settings.FrozenTime {
		now = s.clk.Now().UTC()
	}
	return workflow.Env{
		Seed:         s.settings.Seed,
		Mode:         s.settings.ConnectorMode,
		ShadowMode:   s.settings.ShadowMode,
		Now:          now,
		ReceiptCount: len(s.receipts),
	}
}

func (s *Store) advanceLocked(id workflow.ID, approve bool) bool {
	st, ok := s.workflows[id]
	if !ok || s.closed {
		return false
	}
	env := s.envLocked()
	var (
		next workflow.State
		eff  workflow.Effects
	)
	if approve {
		next, eff = s.machine.Approve(st, env)
	} else {
		next, eff = s.machine.Advance(st, env)
	}
	if !eff.Changed {
		return false
	}
	s.workflows[id] = next
	s.applyEffectsLocked(id, eff, env.Now)
	return true
}

func (s *Store) applyEffectsLocked(id workflow.ID, eff workflow.Effects, now time.Time) {
	if t, ok := s.chains[id]; ok {
		t.Stop()
		delete(s.chains, id)
	}

	s.appendLocked(ActivitySystem, fmt.Sprintf("%s: %s → %s", id, eff.From, eff.To), now)
	for _, g := range eff.Gates {
		s.appendLocked(ActivityPolicy, fmt.Sprintf("%s %s", g.Rule, g.Verdict), now)
	}
	for _, tc := range eff.ToolCalls {
		s.appendLocked(ActivityTool, fmt.Sprintf("%s: %s", tc.Tool, tc.Result), now)
	}
	if eff.Receipt != nil {
		s.receipts = append(s.receipts, *eff.Receipt)
		s.appendLocked(ActivityReceipt, fmt.Sprintf("%s minted for %s (%d¢)", eff.Receipt.ReceiptID, id, eff.Receipt.CostCents), now)
		s.metrics.receipts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("workflow", string(id))))
	}
	if eff.Narration != "" {
		s.narration = eff.Narration
	}
	if eff.Avatar.Valid() {
		s.avatar = eff.Avatar
	}
	if eff.ShowAttack {
		s.showAttackLocked()
	}
	if eff.AutoChain {
		s.scheduleChainLocked(id, eff.To)
	}
	s.checkCompletionLocked(now)

	s.metrics.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("workflow", string(id)),
		attribute.String("to", eff.To.String()),
	))
	s.logger.Debug("workflow advanced", "workflow", id, "from", eff.From.String(), "to", eff.To.String())
}

func (s *Store) appendLocked(typ ActivityType, msg string, now time.Time) {
	s.seq++
	s.activity = append(s.activity, ActivityEntry{Seq: s.seq, Type: typ, Message: msg, Timestamp: now})
	if over := len(s.activity) - ActivityCap; over > 0 {
		s.activity = append([]ActivityEntry(nil), s.activity[over:]...)
	}
}

// scheduleChainLocked arms the continuation registered for entering step.
// The continuation only applies if the epoch is unchanged and the workflow
// still sits at step when it fires.
func (s *Store) scheduleChainLocked(id workflow.ID, step workflow.Step) {
	_, delay, ok := workflow.AutoChain(step)
	if !ok {
		return
	}
	epoch := s.epoch
	s.chains[id] = s.clk.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.closed || s.epoch != epoch || s.workflows[id].Step != step {
			s.mu.Unlock()
			return
		}
		delete(s.chains, id)
		if !s.advanceLocked(id, false) {
			s.mu.Unlock()
			return
		}
		s.commit()
	})
}

func (s *Store) showAttackLocked() {
	s.attack = true
	s.attackGen++
	gen := s.attackGen
	if s.attackTimer != nil {
		s.attackTimer.Stop()
	}
	s.attackTimer = s.clk.AfterFunc(s.timing.AttackDismiss, func() {
		s.mu.Lock()
		if s.closed || s.attackGen != gen || !s.attack {
			s.mu.Unlock()
			return
		}
		s.attack = false
		s.attackTimer = nil
		s.commit()
	})
}

func (s *Store) clearAttackLocked() {
	s.attack = false
	s.attackGen++
	if s.attackTimer != nil {
		s.attackTimer.Stop()
		s.attackTimer = nil
	}
}

func (s *Store) checkCompletionLocked(now time.Time) {
	if s.completionFired {
		return
	}
	for _, id := range workflow.All() {
		if s.workflows[id].Step != workflow.ReceiptStep {
			return
		}
	}
	if len(s.receipts) < 3 {
		return
	}
	s.completed = true
	s.completionFired = true
	s.appendLocked(ActivitySystem, "All workflows complete", now)
	s.metrics.completions.Add(context.Background(), 1)
}

type storeMetrics struct {
	transitions metric.Int64Counter
	receipts    metric.Int64Counter
	resets      metric.Int64Counter
	completions metric.Int64Counter
}

func newStoreMetrics(m metric.Meter) storeMetrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return noop.Int64Counter{}
		}
		return c
	}
	return storeMetrics{
		transitions: counter("sita.demo.transitions", "Workflow step transitions"),
		receipts:    counter("sita.demo.receipts", "Receipts minted"),
		resets:      counter("sita.demo.resets", "Demo resets"),
		completions: counter("sita.demo.completions", "Completed demo runs"),
	}
}
