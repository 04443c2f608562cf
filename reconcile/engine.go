// Package reconcile applies title parsing and recurrence to live lists.
//
// Every operation fetches a fresh snapshot from the host, decides what to
// change from that snapshot alone, and issues the changes one call at a time.
// Failures are logged and recorded on the returned Report; they never stop
// work on sibling items.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/todomagic/clock"
	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/dateparse"
	"github.com/GoCodeAlone/todomagic/extract"
	"github.com/GoCodeAlone/todomagic/lists"
	"github.com/GoCodeAlone/todomagic/repeat"
	"github.com/GoCodeAlone/todomagic/task"
)

// Stage names the pipeline step an action came from.
type Stage string

const (
	StageDetect  Stage = "detect"
	StageExtract Stage = "extract"
	StageCompute Stage = "compute"
	StageMutate  Stage = "mutate"
)

// ActionKind is the change an action made (or tried to make).
type ActionKind string

const (
	ActionSchedule      ActionKind = "schedule"       // rename + due on a new item
	ActionStripToken    ActionKind = "strip_token"    // completed item loses its repeat token
	ActionCreateNext    ActionKind = "create_next"    // successor of a completed recurring item
	ActionUpdateNext    ActionKind = "update_next"    // existing successor got a new due
	ActionMove          ActionKind = "move"           // reorder by due
	ActionRemove        ActionKind = "remove"         // old completed item cleared
	ActionClearAll      ActionKind = "clear_all"      // every completed item cleared
	ActionReflectAdd    ActionKind = "reflect_add"    // item mirrored into a smart list
	ActionReflectUpdate ActionKind = "reflect_update" // mirrored item due changed
	ActionReflectRemove ActionKind = "reflect_remove" // mirrored item no longer in timeframe
)

// Action is one host mutation.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Entity  string     `json:"entity"`
	UID     string     `json:"uid,omitempty"`
	Summary string     `json:"summary,omitempty"`
	Title   string     `json:"title,omitempty"`
	Due     string     `json:"due,omitempty"`
	Stage   Stage      `json:"stage"`
	Err     string     `json:"error,omitempty"`
}

// Report collects the outcome of one operation.
type Report struct {
	Entity  string   `json:"entity"`
	Job     JobKind  `json:"job"`
	Skipped string   `json:"skipped,omitempty"`
	Actions []Action `json:"actions"`
}

// Failed returns the number of actions that did not succeed.
func (r Report) Failed() int {
	n := 0
	for _, a := range r.Actions {
		if a.Err != "" {
			n++
		}
	}
	return n
}

// ListOptions are the per-list feature switches.
type ListOptions struct {
	AutoDue       bool `json:"auto_due"`
	AutoSort      bool `json:"auto_sort"`
	Recurrence    bool `json:"recurrence"`
	AutoClear     bool `json:"auto_clear"`
	AutoClearDays int  `json:"auto_clear_days"`
}

// Engine reconciles lists on a host.
type Engine struct {
	host   task.Host
	guards *Guards
	clock  clock.Clock
	bus    comms.Bus
	logger *slog.Logger

	mu    sync.RWMutex
	lists map[string]ListOptions
	smart lists.SmartLists
}

// NewEngine wires an Engine. bus may be nil; a nil logger uses slog.Default.
func NewEngine(host task.Host, guards *Guards, clk clock.Clock, bus comms.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		host:   host,
		guards: guards,
		clock:  clk,
		bus:    bus,
		logger: logger,
		lists:  make(map[string]ListOptions),
	}
}

// Configure replaces the managed lists and smart-list targets.
func (e *Engine) Configure(managed map[string]ListOptions, smart lists.SmartLists) {
	cp := make(map[string]ListOptions, len(managed))
	for k, v := range managed {
		cp[k] = v
	}
	e.mu.Lock()
	e.lists = cp
	e.smart = smart
	e.mu.Unlock()
}

// Lists returns the managed entities in sorted order.
func (e *Engine) Lists() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.lists))
	for k := range e.lists {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Options returns the switches for entity.
func (e *Engine) Options(entity string) (ListOptions, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.lists[entity]
	return o, ok
}

// SmartLists returns the configured smart-list targets.
func (e *Engine) SmartLists() lists.SmartLists {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.smart
}

// Guards exposes the engine's guard state.
func (e *Engine) Guards() *Guards { return e.guards }

// Run executes one job kind for entity.
func (e *Engine) Run(ctx context.Context, entity string, kind JobKind) (Report, error) {
	switch kind {
	case JobNewItems:
		return e.ProcessNewItems(ctx, entity)
	case JobCompletions:
		return e.ProcessCompletions(ctx, entity)
	case JobSort:
		return e.SortList(ctx, entity)
	case JobClear:
		opts, _ := e.Options(entity)
		return e.ClearCompleted(ctx, entity, opts.AutoClearDays)
	case JobSmartLists:
		return e.RebuildSmartLists(ctx)
	}
	return Report{Entity: entity, Job: kind}, fmt.Errorf("unknown job kind %q", kind)
}

// ProcessNewItems schedules every open item on entity that has no due yet
// and whose title carries a date phrase or repeat token.
func (e *Engine) ProcessNewItems(ctx context.Context, entity string) (Report, error) {
	rep := Report{Entity: entity, Job: JobNewItems}
	if !e.guards.TryAcquire(entity) {
		rep.Skipped = "already processing"
		return rep, nil
	}
	defer e.guards.Release(entity)

	items, err := e.host.GetItems(ctx, entity)
	if err != nil {
		e.logger.Error("fetch items", slog.String("entity", entity), slog.Any("err", err))
		return rep, fmt.Errorf("fetch %s: %w", entity, err)
	}

	now := e.clock.Now()
	today := clock.Midnight(now)
	for _, it := range items {
		// detect
		if it.Completed() || it.Due != "" || e.guards.IsCreated(entity, it.Summary) {
			continue
		}
		if !extract.Candidate(it.Summary, today) {
			continue
		}

		// extract + compute
		plan, sched, ok := extract.Build(it.Summary, now)
		if sched.TokenErr != nil {
			e.logger.Debug("malformed repeat token",
				slog.String("entity", entity), slog.String("summary", it.Summary), slog.Any("err", sched.TokenErr))
		}
		if !ok {
			e.logger.Debug("candidate without trailing schedule",
				slog.String("entity", entity), slog.String("summary", it.Summary))
			continue
		}

		// mutate
		due := task.DateTime(plan.Due)
		req := task.UpdateRequest{Match: it.Ref(), Due: &due}
		if plan.Title != it.Summary {
			title := plan.Title
			req.Rename = &title
		}
		act := Action{
			Kind: ActionSchedule, Entity: entity, UID: it.UID,
			Summary: it.Summary, Title: plan.Title, Due: due.String(), Stage: StageMutate,
		}
		if err := e.host.UpdateItem(ctx, entity, req); err != nil {
			e.logger.Error("schedule item", slog.String("entity", entity),
				slog.String("summary", it.Summary), slog.Any("err", err))
			act.Err = err.Error()
		} else {
			e.logger.Info("scheduled item", slog.String("entity", entity),
				slog.String("title", plan.Title), slog.String("due", due.String()))
		}
		e.record(ctx, &rep, act)
	}
	return rep, nil
}

// ProcessCompletions creates the next instance of every completed recurring
// item on entity and strips the repeat token from the completed one.
func (e *Engine) ProcessCompletions(ctx context.Context, entity string) (Report, error) {
	rep := Report{Entity: entity, Job: JobCompletions}
	if e.SmartLists().Contains(entity) {
		rep.Skipped = "smart list"
		return rep, nil
	}

	items, err := e.host.GetItems(ctx, entity)
	if err != nil {
		e.logger.Error("fetch items", slog.String("entity", entity), slog.Any("err", err))
		return rep, fmt.Errorf("fetch %s: %w", entity, err)
	}

	now := e.clock.Now()
	loc := now.Location()
	for _, it := range items {
		// detect
		if !it.Completed() {
			continue
		}
		words := strings.Fields(it.Summary)
		if len(words) == 0 || !repeat.IsToken(words[len(words)-1]) {
			continue
		}

		// extract
		token := words[len(words)-1]
		rule, err := repeat.Parse(token)
		if err != nil {
			e.logger.Debug("malformed repeat token", slog.String("entity", entity),
				slog.String("summary", it.Summary), slog.Any("err", err))
			continue
		}
		if !e.guards.MarkCompleted(entity, it.UID, it.Summary) {
			continue
		}

		// compute
		prior, hasPrior := e.priorDue(entity, it, loc)
		next, ok := NextDue(now, prior, hasPrior, rule)
		if !ok {
			e.record(ctx, &rep, Action{
				Kind: ActionCreateNext, Entity: entity, UID: it.UID, Summary: it.Summary,
				Stage: StageCompute, Err: fmt.Sprintf("no next instance for %s", token),
			})
			continue
		}

		// mutate
		name := strings.Join(words[:len(words)-1], " ")
		if name != "" {
			act := Action{Kind: ActionStripToken, Entity: entity, UID: it.UID, Summary: it.Summary, Title: name, Stage: StageMutate}
			if err := e.host.UpdateItem(ctx, entity, task.UpdateRequest{Match: it.Ref(), Rename: &name}); err != nil {
				e.logger.Error("strip repeat token", slog.String("entity", entity),
					slog.String("summary", it.Summary), slog.Any("err", err))
				act.Err = err.Error()
			}
			e.record(ctx, &rep, act)
		}

		e.record(ctx, &rep, e.ensureSuccessor(ctx, entity, it, items, next))
	}
	return rep, nil
}

// priorDue reads the completed item's due. A missing or unreadable due is
// treated as the completion day.
func (e *Engine) priorDue(entity string, it task.Item, loc *time.Location) (task.Due, bool) {
	if it.Due == "" {
		return task.Due{}, false
	}
	d, err := task.ParseDue(it.Due, loc)
	if err != nil {
		e.logger.Warn("unreadable due on completed item", slog.String("entity", entity),
			slog.String("summary", it.Summary), slog.Any("err", err))
		return task.Due{}, false
	}
	return d, true
}

// NextDue returns the due of the instance that follows one completed at
// completed. Without a prior due the completion day stands in for it.
func NextDue(completed time.Time, prior task.Due, hasPrior bool, rule repeat.Rule) (task.Due, bool) {
	anchor := completed
	if hasPrior {
		anchor = prior.At
	}
	day, ok := repeat.Next(completed, anchor, rule)
	if !ok {
		return task.Due{}, false
	}
	return successorDue(day, prior, hasPrior, rule), true
}

// successorDue keeps the completed instance's time of day. Month rules and
// date-only or missing dues land at 23:59.
func successorDue(day time.Time, prior task.Due, hasPrior bool, rule repeat.Rule) task.Due {
	if s, ok := rule.(repeat.Simple); ok && s.Unit == repeat.Month {
		return task.DateTime(day)
	}
	tod := dateparse.EndOfDay
	if hasPrior && prior.HasTime {
		tod = dateparse.Of(prior.At)
	}
	return task.DateTime(tod.On(day))
}

// ensureSuccessor adds the next instance unless an open item with the same
// title already exists, in which case only its due is brought in line.
func (e *Engine) ensureSuccessor(ctx context.Context, entity string, done task.Item, items []task.Item, next task.Due) Action {
	for _, other := range items {
		if other.Completed() || other.Summary != done.Summary {
			continue
		}
		act := Action{Kind: ActionUpdateNext, Entity: entity, UID: other.UID, Summary: other.Summary, Due: next.String(), Stage: StageMutate}
		if cur, err := task.ParseDue(other.Due, next.At.Location()); err == nil && cur.Equal(next) {
			act.Kind = ""
			return act
		}
		if err := e.host.UpdateItem(ctx, entity, task.UpdateRequest{Match: other.Ref(), Due: &next}); err != nil {
			e.logger.Error("update successor due", slog.String("entity", entity),
				slog.String("summary", other.Summary), slog.Any("err", err))
			act.Err = err.Error()
		}
		return act
	}

	act := Action{Kind: ActionCreateNext, Entity: entity, Summary: done.Summary, Due: next.String(), Stage: StageMutate}
	if err := e.host.AddItem(ctx, entity, task.AddRequest{Summary: done.Summary, Due: &next}); err != nil {
		e.logger.Error("create successor", slog.String("entity", entity),
			slog.String("summary", done.Summary), slog.Any("err", err))
		act.Err = err.Error()
		return act
	}
	e.guards.MarkCreated(entity, done.Summary)
	e.logger.Info("created next instance", slog.String("entity", entity),
		slog.String("summary", done.Summary), slog.String("due", next.String()))
	return act
}

// SortList reorders the open items of entity by due date. A host that cannot
// reorder leaves the list as it is.
func (e *Engine) SortList(ctx context.Context, entity string) (Report, error) {
	rep := Report{Entity: entity, Job: JobSort}
	items, err := e.host.GetItems(ctx, entity)
	if err != nil {
		e.logger.Error("fetch items", slog.String("entity", entity), slog.Any("err", err))
		return rep, fmt.Errorf("fetch %s: %w", entity, err)
	}

	for _, m := range lists.PlanMoves(items, e.clock.Now().Location()) {
		act := Action{Kind: ActionMove, Entity: entity, UID: m.UID, Stage: StageMutate}
		err := e.host.MoveItem(ctx, entity, m.UID, m.PreviousUID)
		if err == nil {
			e.record(ctx, &rep, act)
			continue
		}
		act.Err = err.Error()
		e.record(ctx, &rep, act)
		if task.IsUnsupported(err) {
			e.logger.Warn("list does not support reordering", slog.String("entity", entity))
			rep.Skipped = "reorder unsupported"
			return rep, nil
		}
		e.logger.Error("move item", slog.String("entity", entity), slog.String("uid", m.UID), slog.Any("err", err))
	}
	return rep, nil
}

// ClearCompleted removes completed items of entity whose due is at least
// days old. When every completed item qualifies the bulk removal is used.
func (e *Engine) ClearCompleted(ctx context.Context, entity string, days int) (Report, error) {
	rep := Report{Entity: entity, Job: JobClear}
	items, err := e.host.GetItems(ctx, entity)
	if err != nil {
		e.logger.Error("fetch items", slog.String("entity", entity), slog.Any("err", err))
		return rep, fmt.Errorf("fetch %s: %w", entity, err)
	}

	eligible, all := lists.Eligible(items, days, clock.Today(e.clock))
	if all {
		act := Action{Kind: ActionClearAll, Entity: entity, Stage: StageMutate}
		err := e.host.RemoveCompleted(ctx, entity)
		if err == nil {
			e.record(ctx, &rep, act)
			return rep, nil
		}
		if !task.IsUnsupported(err) {
			e.logger.Error("clear completed", slog.String("entity", entity), slog.Any("err", err))
			act.Err = err.Error()
			e.record(ctx, &rep, act)
			return rep, nil
		}
		e.logger.Warn("bulk clear unsupported, removing one by one", slog.String("entity", entity))
	}

	for _, it := range eligible {
		act := Action{Kind: ActionRemove, Entity: entity, UID: it.UID, Summary: it.Summary, Due: it.Due, Stage: StageMutate}
		if err := e.host.RemoveItem(ctx, entity, it.Ref()); err != nil {
			e.logger.Error("remove completed item", slog.String("entity", entity),
				slog.String("summary", it.Summary), slog.Any("err", err))
			act.Err = err.Error()
		}
		e.record(ctx, &rep, act)
	}
	return rep, nil
}

type reflection struct {
	summary string
	due     task.Due
}

// key identifies a mirror. Items with the same title but different dues in
// different source lists get a mirror each.
func (r reflection) key() string {
	return r.summary + "|" + r.due.String()
}

// RebuildSmartLists mirrors open, dated items of every managed list into the
// smart lists for their timeframe and removes mirrors that no longer belong.
func (e *Engine) RebuildSmartLists(ctx context.Context) (Report, error) {
	rep := Report{Job: JobSmartLists}
	smart := e.SmartLists()
	targets := smart.All()
	if len(targets) == 0 {
		rep.Skipped = "no smart lists"
		return rep, nil
	}

	now := e.clock.Now()
	today := clock.Midnight(now)
	desired := make(map[string][]reflection, len(targets))
	seen := make(map[string]map[string]bool, len(targets))
	for _, t := range targets {
		seen[t] = make(map[string]bool)
	}

	var errs []error
	for _, src := range e.Lists() {
		if smart.Contains(src) {
			continue
		}
		items, err := e.host.GetItems(ctx, src)
		if err != nil {
			e.logger.Error("fetch items", slog.String("entity", src), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("fetch %s: %w", src, err))
			continue
		}
		for _, it := range items {
			if it.Completed() || it.Due == "" {
				continue
			}
			due, err := task.ParseDue(it.Due, now.Location())
			if err != nil {
				continue
			}
			r := reflection{summary: it.Summary, due: due}
			for _, t := range smart.Targets(lists.Classify(due.At, today)) {
				if seen[t][r.key()] {
					continue
				}
				seen[t][r.key()] = true
				desired[t] = append(desired[t], r)
			}
		}
	}
	if len(errs) > 0 {
		// A partial view would remove mirrors of the unreadable lists.
		return rep, errors.Join(errs...)
	}

	for _, t := range targets {
		if err := e.syncSmartList(ctx, &rep, t, desired[t]); err != nil {
			errs = append(errs, err)
		}
	}
	return rep, errors.Join(errs...)
}

// syncSmartList makes the open items of target match want. A mirror whose
// title and due already match is kept; one whose title matches is moved to
// the wanted due; anything left over is removed.
func (e *Engine) syncSmartList(ctx context.Context, rep *Report, target string, want []reflection) error {
	current, err := e.host.GetItems(ctx, target)
	if err != nil {
		e.logger.Error("fetch items", slog.String("entity", target), slog.Any("err", err))
		return fmt.Errorf("fetch %s: %w", target, err)
	}
	var open []task.Item
	for _, it := range current {
		if !it.Completed() {
			open = append(open, it)
		}
	}
	claimed := make([]bool, len(open))
	claim := func(r reflection, sameDue bool) (task.Item, bool) {
		for i, it := range open {
			if claimed[i] || it.Summary != r.summary {
				continue
			}
			if sameDue {
				d, err := task.ParseDue(it.Due, r.due.At.Location())
				if err != nil || !d.Equal(r.due) {
					continue
				}
			}
			claimed[i] = true
			return it, true
		}
		return task.Item{}, false
	}

	var pending []reflection
	for _, r := range want {
		if _, ok := claim(r, true); !ok {
			pending = append(pending, r)
		}
	}

	for _, r := range pending {
		due := r.due
		if cur, ok := claim(r, false); ok {
			act := Action{Kind: ActionReflectUpdate, Entity: target, UID: cur.UID, Summary: r.summary, Due: due.String(), Stage: StageMutate}
			if err := e.host.UpdateItem(ctx, target, task.UpdateRequest{Match: cur.Ref(), Due: &due}); err != nil {
				e.logger.Error("update reflection", slog.String("entity", target), slog.String("summary", r.summary), slog.Any("err", err))
				act.Err = err.Error()
			}
			e.record(ctx, rep, act)
			continue
		}
		act := Action{Kind: ActionReflectAdd, Entity: target, Summary: r.summary, Due: due.String(), Stage: StageMutate}
		if err := e.host.AddItem(ctx, target, task.AddRequest{Summary: r.summary, Due: &due}); err != nil {
			e.logger.Error("reflect item", slog.String("entity", target), slog.String("summary", r.summary), slog.Any("err", err))
			act.Err = err.Error()
		}
		e.record(ctx, rep, act)
	}

	for i, it := range open {
		if claimed[i] {
			continue
		}
		act := Action{Kind: ActionReflectRemove, Entity: target, UID: it.UID, Summary: it.Summary, Stage: StageMutate}
		if err := e.host.RemoveItem(ctx, target, it.Ref()); err != nil {
			e.logger.Error("remove reflection", slog.String("entity", target), slog.String("summary", it.Summary), slog.Any("err", err))
			act.Err = err.Error()
		}
		e.record(ctx, rep, act)
	}
	return nil
}

// Job is one unit of scheduled work.
type Job struct {
	Entity string  `json:"entity"`
	Kind   JobKind `json:"kind"`
}

// MidnightJobs lists the daily duties in the order they should run:
// per list completion scan, clearing and sorting, then the smart lists.
func (e *Engine) MidnightJobs() []Job {
	var jobs []Job
	for _, entity := range e.Lists() {
		opts, _ := e.Options(entity)
		if opts.Recurrence {
			jobs = append(jobs, Job{entity, JobCompletions})
		}
		if opts.AutoClear {
			jobs = append(jobs, Job{entity, JobClear})
		}
		if opts.AutoSort {
			jobs = append(jobs, Job{entity, JobSort})
		}
	}
	if len(e.SmartLists().All()) > 0 {
		jobs = append(jobs, Job{Kind: JobSmartLists})
	}
	return jobs
}

// Midnight runs the daily duties inline. One failing list does not stop the others.
func (e *Engine) Midnight(ctx context.Context) ([]Report, error) {
	var reports []Report
	var errs []error
	for _, j := range e.MidnightJobs() {
		rep, err := e.Run(ctx, j.Entity, j.Kind)
		reports = append(reports, rep)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// Preview is what processing a title would do, without touching any list.
type Preview struct {
	extract.Plan
	Candidate  bool   `json:"candidate"`
	TokenError string `json:"token_error,omitempty"`
}

// Preview parses title as ProcessNewItems would.
func (e *Engine) Preview(title string) Preview {
	now := e.clock.Now()
	plan, sched, ok := extract.Build(title, now)
	p := Preview{Plan: plan, Candidate: ok}
	if !ok {
		p.Plan = extract.Plan{Original: title, Title: title, Name: sched.Name}
	}
	if sched.TokenErr != nil {
		p.TokenError = sched.TokenErr.Error()
	}
	return p
}

// record appends act to rep and publishes it. Actions without a kind were no-ops.
func (e *Engine) record(ctx context.Context, rep *Report, act Action) {
	if act.Kind == "" {
		return
	}
	rep.Actions = append(rep.Actions, act)
	if e.bus == nil {
		return
	}
	meta := map[string]string{"kind": string(act.Kind), "stage": string(act.Stage)}
	if act.UID != "" {
		meta["uid"] = act.UID
	}
	if act.Due != "" {
		meta["due"] = act.Due
	}
	if act.Title != "" {
		meta["title"] = act.Title
	}
	if act.Err != "" {
		meta["error"] = act.Err
	}
	ev := &comms.Event{
		Type:     comms.TypeAction,
		Entity:   act.Entity,
		Summary:  act.Summary,
		Detail:   string(act.Kind),
		Metadata: meta,
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish action", slog.Any("err", err))
	}
}
