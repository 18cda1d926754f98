package panel

// Action is a user event bound to a button.
type Action string

const (
	ActionArchive    Action = "archive"
	ActionConfirm    Action = "confirm"
	ActionCancel     Action = "cancel"
	ActionReactivate Action = "reactivate"
)

// ParseAction returns the Action named s.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionArchive, ActionConfirm, ActionCancel, ActionReactivate:
		return a, true
	default:
		return "", false
	}
}

// Body is the main content of the panel.
type Body int

const (
	// BodyEmpty renders an empty container.
	BodyEmpty Body = iota
	// BodyActive renders the active-status control, which opens confirmation.
	BodyActive
	// BodyArchived renders the archived notice.
	BodyArchived
)

func (b Body) String() string {
	switch b {
	case BodyActive:
		return "active"
	case BodyArchived:
		return "archived"
	default:
		return "empty"
	}
}

// State is the transient panel state owned by the controller.
type State struct {
	ShowConfirmation bool `json:"show_confirmation"`
}

// View describes what a render shows.
type View struct {
	Body             Body
	ShowReactivate   bool
	ShowConfirmation bool
}

// BuildView maps panel state to a View.
//
//	archived  canEdit  status      body
//	true      true     Archived    archived notice + reactivate
//	true      *        *           archived notice
//	false     *        Active      active-status control
//	false     *        other       empty
func BuildView(state State, projectArchived, userCanEdit bool, status Status) View {
	v := View{ShowConfirmation: state.ShowConfirmation}
	switch {
	case projectArchived:
		v.Body = BodyArchived
		v.ShowReactivate = userCanEdit && status == StatusArchived
	case status == StatusActive:
		v.Body = BodyActive
	default:
		v.Body = BodyEmpty
	}
	return v
}

// Archived reports whether the archived notice is shown.
func (v View) Archived() bool { return v.Body == BodyArchived }

// Active reports whether the active-status control is shown.
func (v View) Active() bool { return v.Body == BodyActive }

// Allows reports whether a is bound to a button in the view.
func (v View) Allows(a Action) bool {
	switch a {
	case ActionArchive:
		return v.Body == BodyActive
	case ActionConfirm, ActionCancel:
		return v.ShowConfirmation && v.Body == BodyActive
	case ActionReactivate:
		return v.ShowReactivate
	default:
		return false
	}
}

// Actions returns the bound actions in render order.
func (v View) Actions() []Action {
	var actions []Action
	for _, a := range []Action{ActionConfirm, ActionCancel, ActionReactivate, ActionArchive} {
		if v.Allows(a) {
			actions = append(actions, a)
		}
	}
	return actions
}
