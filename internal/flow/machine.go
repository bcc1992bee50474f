package flow

import (
	"encoding/json"
	"fmt"
	"time"

	"lessonflow/internal/domain"
	"lessonflow/internal/models"
)

// Visit records a forward move so retreat can return to where it came from.
type Visit struct {
	From    int   `json:"from"`
	Version int64 `json:"version"`
}

// State is the serializable state of one booking session.
type State struct {
	SessionID string          `json:"session_id"`
	FlowType  models.FlowType `json:"flow_type"`
	StepIndex int             `json:"step_index"`
	Draft     models.Draft    `json:"draft"`
	Initial   models.Draft    `json:"initial"`
	Identity  models.Identity `json:"identity"`
	History   []Visit         `json:"history,omitempty"`
	Version   int64           `json:"version"`
	BookingID int64           `json:"booking_id,omitempty"`
	Partial   bool            `json:"partial,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Machine drives one booking session through its flow. It performs no I/O.
type Machine struct {
	state State
}

// View is the read-only projection handed to step renderers.
type View struct {
	SessionID  string            `json:"session_id"`
	FlowType   models.FlowType   `json:"flow_type"`
	Step       models.StepName   `json:"step"`
	StepIndex  int               `json:"step_index"`
	Steps      []models.StepName `json:"steps"`
	Terminal   bool              `json:"terminal"`
	CanAdvance bool              `json:"can_advance"`
	Unmet      []string          `json:"unmet,omitempty"`
	Draft      models.Draft      `json:"draft"`
	BookingID  int64             `json:"booking_id,omitempty"`
	Incomplete bool              `json:"incomplete,omitempty"`
	Identity   models.Identity   `json:"identity"`
	Progress   float64           `json:"progress"`
}

func New(sessionID string, flowType models.FlowType, identity models.Identity, prefill models.Draft) (*Machine, error) {
	if !flowType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFlowType, flowType)
	}

	draft := prefill.Clone()
	if identity.Authenticated() && draft.ParentID == 0 {
		draft.ParentID = identity.ParentID
	}
	capFocusAreas(&draft)

	m := &Machine{state: State{
		SessionID: sessionID,
		FlowType:  flowType,
		Draft:     draft,
		Initial:   draft.Clone(),
		Identity:  identity,
		CreatedAt: time.Now(),
	}}
	m.state.StepIndex = m.initialIndex()
	return m, nil
}

// Restore rebuilds a machine from its serialized state.
func Restore(data []byte) (*Machine, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	if !st.FlowType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFlowType, st.FlowType)
	}
	if st.StepIndex < 0 || st.StepIndex >= stepCount(st.FlowType) {
		return nil, fmt.Errorf("session %s has step index %d outside flow %s", st.SessionID, st.StepIndex, st.FlowType)
	}
	return &Machine{state: st}, nil
}

func (m *Machine) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.state)
}

func (m *Machine) SessionID() string {
	return m.state.SessionID
}

func (m *Machine) FlowType() models.FlowType {
	return m.state.FlowType
}

func (m *Machine) Identity() models.Identity {
	return m.state.Identity
}

func (m *Machine) StepIndex() int {
	return m.state.StepIndex
}

func (m *Machine) CurrentStep() models.StepName {
	return stepAt(m.state.FlowType, m.state.StepIndex)
}

// Draft returns a copy of the draft.
func (m *Machine) Draft() models.Draft {
	return m.state.Draft.Clone()
}

func (m *Machine) BookingID() int64 {
	return m.state.BookingID
}

func (m *Machine) MarkCommitted(bookingID int64) {
	m.state.BookingID = bookingID
	m.state.Partial = false
}

// MarkIncomplete records a booking whose join rows are still missing.
func (m *Machine) MarkIncomplete(bookingID int64) {
	m.state.BookingID = bookingID
	m.state.Partial = true
}

func (m *Machine) Incomplete() bool {
	return m.state.BookingID != 0 && m.state.Partial
}

func (m *Machine) CanAdvance() bool {
	return IsSatisfied(m.CurrentStep(), &m.state.Draft)
}

func (m *Machine) IsTerminal() bool {
	return m.state.StepIndex == stepCount(m.state.FlowType)-1
}

// Advance moves to the next step that is not skipped. It fails with a
// *domain.ValidationError when the current step is incomplete, and is a no-op
// at the last step.
func (m *Machine) Advance() error {
	if verr := Check(m.CurrentStep(), &m.state.Draft); verr != nil {
		return verr
	}
	next := settle(&m.state, m.state.StepIndex+1, 1)
	if next >= stepCount(m.state.FlowType) {
		return nil
	}
	m.state.History = append(m.state.History, Visit{From: m.state.StepIndex, Version: m.state.Version})
	m.state.StepIndex = next
	return nil
}

// Retreat moves back without validation. When the draft is unchanged since
// the matching advance it returns exactly to the step that advance left.
func (m *Machine) Retreat() {
	if n := len(m.state.History); n > 0 {
		last := m.state.History[n-1]
		m.state.History = m.state.History[:n-1]
		if last.Version == m.state.Version && last.From < m.state.StepIndex {
			m.state.StepIndex = last.From
			return
		}
	}

	prev := settle(&m.state, m.state.StepIndex-1, -1)
	if prev < 0 {
		return
	}
	m.state.StepIndex = prev
	m.trimHistory(prev)
}

// JumpTo moves directly to step. Backward jumps are always allowed; forward
// jumps require every step passed over to be complete. Skip rules apply to
// the target in both directions.
func (m *Machine) JumpTo(step models.StepName) error {
	target, ok := IndexOf(m.state.FlowType, step)
	if !ok {
		return fmt.Errorf("%w: %s in %s", domain.ErrUnknownStep, step, m.state.FlowType)
	}
	current := m.state.StepIndex
	if target == current {
		return nil
	}
	if target < current {
		// a hidden step lands on the nearest visible one, looking back first
		landing := settle(&m.state, target, -1)
		if landing < 0 {
			landing = settle(&m.state, target, 1)
		}
		if landing >= current {
			return nil
		}
		m.state.StepIndex = landing
		m.state.History = nil
		return nil
	}

	for i := current; i < target; i++ {
		name := stepAt(m.state.FlowType, i)
		if shouldSkip(&m.state, name) {
			continue
		}
		if verr := Check(name, &m.state.Draft); verr != nil {
			return verr
		}
	}
	target = settle(&m.state, target, 1)
	if target >= stepCount(m.state.FlowType) {
		return nil
	}
	m.state.History = append(m.state.History, Visit{From: current, Version: m.state.Version})
	m.state.StepIndex = target
	return nil
}

// UpdateDraft merges patch into the draft. It does not validate steps; the
// only rejected update is a focus-area list longer than the lesson allows,
// in which case nothing is stored.
func (m *Machine) UpdateDraft(p models.DraftPatch) error {
	d := m.state.Draft.Clone()

	if p.LessonType != nil {
		d.LessonType = *p.LessonType
		capFocusAreas(&d)
	}
	if p.FocusAreas != nil {
		if len(*p.FocusAreas) > d.LessonType.MaxFocusAreas() {
			return fmt.Errorf("%w: %s allows %d", domain.ErrFocusAreaLimit, d.LessonType, d.LessonType.MaxFocusAreas())
		}
		d.FocusAreas = append([]models.FocusArea(nil), (*p.FocusAreas)...)
	}
	if p.SelectedAthletes != nil {
		d.SelectedAthletes = append([]int64(nil), (*p.SelectedAthletes)...)
	}
	if p.Athletes != nil {
		d.Athletes = append([]models.AthleteInfo(nil), (*p.Athletes)...)
	}
	if p.FocusAreaOther != nil {
		d.FocusAreaOther = *p.FocusAreaOther
	}
	if p.SideQuests != nil {
		d.SideQuests = append([]string(nil), (*p.SideQuests)...)
	}
	if p.ClearSlot {
		d.Slot = nil
	} else if p.Slot != nil {
		slot := *p.Slot
		d.Slot = &slot
	}
	if p.Parent != nil {
		parent := *p.Parent
		d.Parent = &parent
	}
	if p.Safety != nil {
		d.Safety = (&models.Draft{Safety: p.Safety}).Clone().Safety
	}
	if p.Waiver != nil {
		d.Waiver = (&models.Draft{Waiver: *p.Waiver}).Clone().Waiver
	}
	if p.Admin != nil {
		d.Admin = *p.Admin
	}
	if p.SpecialRequests != nil {
		d.SpecialRequests = *p.SpecialRequests
	}

	m.state.Draft = d
	m.state.Version++
	return nil
}

// Reset discards the draft and returns to the initial state. The returned
// slot, if any, is the one whose reservation the caller must release.
func (m *Machine) Reset() *models.SlotSelection {
	held := m.state.Draft.Slot
	m.state.Draft = m.state.Initial.Clone()
	m.state.History = nil
	m.state.BookingID = 0
	m.state.Partial = false
	m.state.Version++
	m.state.StepIndex = m.initialIndex()
	return held
}

// Pending returns the first unmet step that the flow would not skip, or nil
// when the draft is complete.
func (m *Machine) Pending() *domain.ValidationError {
	for _, step := range registry[m.state.FlowType] {
		if shouldSkip(&m.state, step) {
			continue
		}
		if verr := Check(step, &m.state.Draft); verr != nil {
			return verr
		}
	}
	return nil
}

func (m *Machine) View() View {
	steps := StepsFor(m.state.FlowType)
	v := View{
		SessionID:  m.state.SessionID,
		FlowType:   m.state.FlowType,
		Step:       m.CurrentStep(),
		StepIndex:  m.state.StepIndex,
		Steps:      steps,
		Terminal:   m.IsTerminal(),
		CanAdvance: m.CanAdvance(),
		Draft:      m.Draft(),
		BookingID:  m.state.BookingID,
		Incomplete: m.Incomplete(),
		Identity:   m.state.Identity,
		Progress:   float64(m.state.StepIndex+1) / float64(len(steps)),
	}
	if verr := Check(v.Step, &m.state.Draft); verr != nil {
		v.Unmet = verr.Fields
	}
	return v
}

func (m *Machine) initialIndex() int {
	i := settle(&m.state, 0, 1)
	if i >= stepCount(m.state.FlowType) {
		return stepCount(m.state.FlowType) - 1
	}
	return i
}

func (m *Machine) trimHistory(index int) {
	h := m.state.History
	for len(h) > 0 && h[len(h)-1].From >= index {
		h = h[:len(h)-1]
	}
	m.state.History = h
}

// capFocusAreas keeps the first selections allowed by the lesson type.
func capFocusAreas(d *models.Draft) {
	if !d.LessonType.Valid() {
		return
	}
	if limit := d.LessonType.MaxFocusAreas(); len(d.FocusAreas) > limit {
		d.FocusAreas = d.FocusAreas[:limit]
	}
}
