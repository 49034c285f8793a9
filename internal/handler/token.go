package handler

import (
	"fmt"
	"strconv"
	"strings"
)

// Verb is the closed set of callback actions the keyboards emit.
type Verb string

const (
	VerbAction  Verb = "action"  // approve tapped, show the category keyboard
	VerbConfirm Verb = "confirm" // category picked, submit with it
	VerbCustom  Verb = "custom"  // free-text comment requested
)

// Action is a decoded callback token.
type Action struct {
	Verb    Verb
	OrderID int64
	// Arg is the sub-action for action tokens ("approve") and the
	// category for confirm tokens. Empty for custom.
	Arg string
}

// DecodeAction parses a callback token of the form "<verb>:<id>" or
// "<verb>:<id>:<arg>". Anything outside the known shapes is rejected: a
// token is an instruction to mutate CRM state, so unknown input never maps
// onto a default action.
func DecodeAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return Action{}, fmt.Errorf("callback token %q: too few fields", data)
	}

	verb := Verb(parts[0])
	orderID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("callback token %q: bad order id: %w", data, err)
	}

	switch verb {
	case VerbCustom:
		if len(parts) != 2 {
			return Action{}, fmt.Errorf("callback token %q: unexpected extra fields", data)
		}
		return Action{Verb: verb, OrderID: orderID}, nil
	case VerbAction:
		if len(parts) != 3 || parts[2] == "" {
			return Action{}, fmt.Errorf("callback token %q: action needs a sub-action", data)
		}
		return Action{Verb: verb, OrderID: orderID, Arg: parts[2]}, nil
	case VerbConfirm:
		if len(parts) != 3 || parts[2] == "" {
			return Action{}, fmt.Errorf("callback token %q: confirm needs a category", data)
		}
		return Action{Verb: verb, OrderID: orderID, Arg: parts[2]}, nil
	}
	return Action{}, fmt.Errorf("callback token %q: unknown verb", data)
}

// EncodeAction builds the callback token for a keyboard button.
func EncodeAction(a Action) string {
	if a.Arg != "" {
		return fmt.Sprintf("%s:%d:%s", a.Verb, a.OrderID, a.Arg)
	}
	return fmt.Sprintf("%s:%d", a.Verb, a.OrderID)
}
