package domain

import "fmt"

// Status is the closed vocabulary of order states used by the CRM.
type Status string

const (
	StatusNew       Status = "initial"
	StatusPaused    Status = "pause"
	StatusApproved  Status = "approve"
	StatusCancelled Status = "cancel"
	StatusStudying  Status = "study"
)

var statusLabels = map[Status]string{
	StatusNew:       "🆕 Новая",
	StatusPaused:    "⏸️ Отложена",
	StatusApproved:  "✅ Подтверждена",
	StatusCancelled: "❌ Отменена",
	StatusStudying:  "🎓 Обучается",
}

// ParseStatus maps a raw CRM state code onto the status vocabulary. An
// unknown code is a hard error for the order carrying it: rendering an order
// with a blank status would hide a real state from the operator.
func ParseStatus(code string) (Status, error) {
	s := Status(code)
	if _, ok := statusLabels[s]; !ok {
		return "", &StatusError{Code: code}
	}
	return s, nil
}

// Label returns the display label for a known status, or the raw code for an
// unknown one (which ParseStatus never lets through).
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// weekdayLabels maps CRM weekday codes to display labels. The CRM week runs
// Monday=1 through Saturday=6, with Sunday=0.
var weekdayLabels = map[int]string{
	1: "ПН",
	2: "ВТ",
	3: "СР",
	4: "ЧТ",
	5: "ПТ",
	6: "СБ",
	0: "ВС",
}

// WeekdayLabel returns the display label for a CRM weekday code.
func WeekdayLabel(code int) (string, bool) {
	label, ok := weekdayLabels[code]
	return label, ok
}

// ScheduleEntry is one weekly time slot of an event group.
type ScheduleEntry struct {
	Days      []int
	TimeStart string
	TimeEnd   string
}

// Order is a display-ready enrollment application, assembled per aggregation
// call from the raw order plus three auxiliary lookups. It is never persisted.
type Order struct {
	ID               int64
	Status           Status
	StudentFirstName string
	StudentLastName  string
	RequesterName    string
	RequesterPhone   string
	// ContactLink is a t.me link built from the normalized requester phone.
	ContactLink string
	// ContactUnavailable is set when the requester lookup failed; the order
	// is still rendered, with contact fields marked unavailable.
	ContactUnavailable bool
	GroupID            int64
	GroupName          string
	Schedule           []ScheduleEntry
	EditLink           string
}

// StatusError reports a CRM state code outside the known vocabulary.
type StatusError struct {
	OrderID int64
	Code    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("order %d: unknown status code %q", e.OrderID, e.Code)
}
