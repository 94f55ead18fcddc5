package browser

import "fmt"

// ActionTag names one of the supported action shapes.
type ActionTag string

const (
	ActionClick         ActionTag = "click"
	ActionDblClick      ActionTag = "dblclick"
	ActionHover         ActionTag = "hover"
	ActionClear         ActionTag = "clear"
	ActionFocus         ActionTag = "focus"
	ActionFill          ActionTag = "fill"
	ActionSelectOption  ActionTag = "select_option"
	ActionScroll        ActionTag = "scroll"
	ActionKeyboardType  ActionTag = "keyboard_type"
	ActionKeyboardPress ActionTag = "keyboard_press"
	ActionPress         ActionTag = "press" // alias of keyboard_press
	ActionGoto          ActionTag = "goto"
	ActionTabFocus      ActionTag = "tab_focus"
	ActionNewTab        ActionTag = "new_tab"
	ActionTabClose      ActionTag = "tab_close"
	ActionSendMsgToUser ActionTag = "send_msg_to_user"
	ActionDragAndDrop   ActionTag = "drag_and_drop"
)

// Action is a tagged record describing one browser operation. Fields not
// relevant to Tag are left zero.
type Action struct {
	Action ActionTag `json:"action"`

	Bid     string   `json:"bid,omitempty"`
	Text    string   `json:"text,omitempty"`
	Options []string `json:"options,omitempty"`

	Direction string   `json:"direction,omitempty"`
	Dx        *float64 `json:"dx,omitempty"`
	Dy        *float64 `json:"dy,omitempty"`

	KeyComb string `json:"key_comb,omitempty"`
	Key     string `json:"key,omitempty"`

	URL string `json:"url,omitempty"`

	TabIndex int `json:"tab_index,omitempty"`

	FromBid string `json:"from_bid,omitempty"`
	ToBid   string `json:"to_bid,omitempty"`
}

// ShapeError reports that an Action batch failed shape validation before any
// execution was attempted. ActionIndex identifies the offending entry.
type ShapeError struct {
	ActionIndex int
	Reason      string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("action at index %d has invalid shape: %s", e.ActionIndex, e.Reason)
}

// normalizedTag resolves the press/keyboard_press alias to a single tag for
// validation and dispatch.
func normalizedTag(tag ActionTag) ActionTag {
	if tag == ActionPress {
		return ActionKeyboardPress
	}
	return tag
}

// ValidateAction checks that action carries the required fields for its tag.
// An unknown tag or a missing required field is reported as a ShapeError.
func ValidateAction(action Action, index int) error {
	switch normalizedTag(action.Action) {
	case ActionClick, ActionDblClick, ActionHover, ActionClear, ActionFocus:
		if action.Bid == "" {
			return &ShapeError{ActionIndex: index, Reason: "bid is required"}
		}
	case ActionFill:
		if action.Bid == "" {
			return &ShapeError{ActionIndex: index, Reason: "bid is required"}
		}
		if action.Text == "" {
			return &ShapeError{ActionIndex: index, Reason: "text is required"}
		}
	case ActionSelectOption:
		if action.Bid == "" {
			return &ShapeError{ActionIndex: index, Reason: "bid is required"}
		}
		if action.Text == "" && len(action.Options) == 0 {
			return &ShapeError{ActionIndex: index, Reason: "text or options is required"}
		}
	case ActionScroll:
		if action.Direction == "" && action.Dx == nil && action.Dy == nil {
			return &ShapeError{ActionIndex: index, Reason: "direction, dx, or dy is required"}
		}
	case ActionKeyboardType:
		if action.Text == "" {
			return &ShapeError{ActionIndex: index, Reason: "text is required"}
		}
	case ActionKeyboardPress:
		if action.KeyComb == "" && action.Key == "" {
			return &ShapeError{ActionIndex: index, Reason: "key_comb or key is required"}
		}
	case ActionGoto:
		if action.URL == "" {
			return &ShapeError{ActionIndex: index, Reason: "url is required"}
		}
	case ActionTabFocus:
		// tab_index's zero value is a valid index; nothing further required.
	case ActionNewTab, ActionTabClose:
		// no fields required
	case ActionSendMsgToUser:
		if action.Text == "" {
			return &ShapeError{ActionIndex: index, Reason: "text is required"}
		}
	case ActionDragAndDrop:
		if action.FromBid == "" || action.ToBid == "" {
			return &ShapeError{ActionIndex: index, Reason: "from_bid and to_bid are required"}
		}
	default:
		return &ShapeError{ActionIndex: index, Reason: fmt.Sprintf("unknown action tag %q", action.Action)}
	}
	return nil
}

// ValidateBatch validates every action in the batch, failing on the first
// shape error encountered. A batch of more than 50 actions is rejected
// before any per-action validation.
func ValidateBatch(actions []Action) error {
	const maxBatchSize = 50
	if len(actions) > maxBatchSize {
		return &ShapeError{ActionIndex: -1, Reason: fmt.Sprintf("batch of %d exceeds maximum of %d", len(actions), maxBatchSize)}
	}
	for i, a := range actions {
		if err := ValidateAction(a, i); err != nil {
			return err
		}
	}
	return nil
}
