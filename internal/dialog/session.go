package dialog

import (
	"sync"

	"schoolbot/internal/catalog"
)

// Flow identifies one of the four top-level dialogs.
type Flow string

const (
	FlowBrowse      Flow = "browse"
	FlowRequest     Flow = "request"
	FlowAdminAdd    Flow = "admin_add"
	FlowAdminDelete Flow = "admin_delete"
)

// AdminOnly reports whether the flow requires the admin role.
func (f Flow) AdminOnly() bool {
	return f == FlowAdminAdd || f == FlowAdminDelete
}

// State identifies a step inside a flow.
type State string

const (
	StateIdle           State = "idle"
	StateSelectGrade    State = "select_grade"
	StateSelectSubject  State = "select_subject"
	StateSelectCategory State = "select_category"
	StateSelectTopic    State = "select_topic"
	StateEnterTopic     State = "enter_topic"
	StateEnterDesc      State = "enter_description"
	StateAwaitFile      State = "await_file"
	StateConfirmDelete  State = "confirm_delete"
)

// selection holds the taxonomy fields every flow accumulates in its first
// three states.
type selection struct {
	Grade    int
	Subject  string
	Category string
}

// BrowseContext accumulates the browse/download flow's selections.
type BrowseContext struct {
	selection
	Topics []string
}

// RequestContext accumulates the request-new-material flow's selections.
type RequestContext struct {
	selection
	Topic       string
	Description *string
}

// AdminAddContext accumulates the admin upload flow's selections.
type AdminAddContext struct {
	selection
	Topic string
}

// AdminDeleteContext accumulates the admin delete flow's selections.
type AdminDeleteContext struct {
	selection
	Topics   []string
	Material *catalog.Material
}

// Session is the per-user conversation state. It exists only while a flow is
// active: created on flow entry, discarded on terminal, cancel or reset.
// Events for one session are serialized by its mutex; different users'
// sessions proceed independently.
type Session struct {
	mu     sync.Mutex
	userID int64
	flow   Flow
	state  State
	closed bool

	// Exactly one of these is non-nil, tagged by flow.
	browse      *BrowseContext
	request     *RequestContext
	adminAdd    *AdminAddContext
	adminDelete *AdminDeleteContext
}

func newSession(userID int64, flow Flow) *Session {
	s := &Session{userID: userID, flow: flow, state: StateSelectGrade}
	switch flow {
	case FlowBrowse:
		s.browse = &BrowseContext{}
	case FlowRequest:
		s.request = &RequestContext{}
	case FlowAdminAdd:
		s.adminAdd = &AdminAddContext{}
	case FlowAdminDelete:
		s.adminDelete = &AdminDeleteContext{}
	}
	return s
}

// Flow returns the session's active flow.
func (s *Session) Flow() Flow { return s.flow }

// State returns the session's current state.
func (s *Session) State() State { return s.state }
