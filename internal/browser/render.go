package browser

import (
	"fmt"
	"strconv"

	"github.com/playwright-community/playwright-go"

	"github.com/a2aeval/evaluator/internal/observation"
)

// bidSelector builds the CSS selector BrowserGym-style bid addressing uses:
// elements carry a "bid" attribute injected by the environment's page
// instrumentation.
func bidSelector(bid string) string {
	return fmt.Sprintf("[bid=%q]", bid)
}

// applyAction dispatches one validated Action against page.
func applyAction(page playwright.Page, action Action) error {
	switch normalizedTag(action.Action) {
	case ActionClick:
		return page.Click(bidSelector(action.Bid))
	case ActionDblClick:
		return page.Dblclick(bidSelector(action.Bid))
	case ActionHover:
		return page.Hover(bidSelector(action.Bid))
	case ActionClear:
		return page.Fill(bidSelector(action.Bid), "")
	case ActionFocus:
		return page.Focus(bidSelector(action.Bid))
	case ActionFill:
		return page.Fill(bidSelector(action.Bid), action.Text)
	case ActionSelectOption:
		values := action.Options
		if len(values) == 0 {
			values = []string{action.Text}
		}
		selectValues := make([]string, len(values))
		copy(selectValues, values)
		_, err := page.SelectOption(bidSelector(action.Bid), playwright.SelectOptionValues{Values: &selectValues})
		return err
	case ActionScroll:
		dx, dy := 0.0, 0.0
		if action.Dx != nil {
			dx = *action.Dx
		}
		if action.Dy != nil {
			dy = *action.Dy
		}
		switch action.Direction {
		case "down":
			dy = 300
		case "up":
			dy = -300
		case "left":
			dx = -300
		case "right":
			dx = 300
		}
		return page.Mouse().Wheel(dx, dy)
	case ActionKeyboardType:
		return page.Keyboard().Type(action.Text)
	case ActionKeyboardPress:
		key := action.KeyComb
		if key == "" {
			key = action.Key
		}
		return page.Keyboard().Press(key)
	case ActionGoto:
		_, err := page.Goto(action.URL, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded})
		return err
	case ActionTabFocus, ActionNewTab, ActionTabClose:
		// Multi-tab addressing is handled at the BrowserContext level by
		// callers that track more than one Session page; the single-session
		// model here keeps one page per Session, so these are accepted as
		// no-ops rather than rejected, matching a single-tab task.
		return nil
	case ActionSendMsgToUser:
		return nil
	case ActionDragAndDrop:
		return page.DragAndDrop(bidSelector(action.FromBid), bidSelector(action.ToBid))
	default:
		return fmt.Errorf("unsupported action tag %q", action.Action)
	}
}

// captureObservation snapshots the page's accessibility tree and current
// URL into the Raw shape C5 consumes.
func captureObservation(page playwright.Page, lastActionResult string) (observation.Raw, error) {
	snapshot, err := page.Accessibility().Snapshot()
	if err != nil {
		return observation.Raw{}, err
	}
	tree := []observation.AxNode{}
	if snapshot != nil {
		tree = []observation.AxNode{convertNode(snapshot, 0)}
	}
	return observation.Raw{
		Tree:             tree,
		URL:              page.URL(),
		LastActionResult: lastActionResult,
	}, nil
}

func convertNode(n *playwright.AccessibilitySnapshotResult, seq int) observation.AxNode {
	node := observation.AxNode{
		Role:    n.Role,
		Name:    n.Name,
		Bid:     strconv.Itoa(seq),
		Focused: n.Focused,
	}
	if n.Value != nil {
		node.Value = fmt.Sprintf("%v", n.Value)
	}
	for i, child := range n.Children {
		node.Children = append(node.Children, convertNode(child, seq*100+i+1))
	}
	return node
}
