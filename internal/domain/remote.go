package domain

import "context"

// RawOrder is an order row as the CRM returns it, before joins.
type RawOrder struct {
	ID           int64  `json:"id"`
	State        string `json:"state"`
	SiteUserID   int64  `json:"site_user_id"`
	SiteUserFIO  string `json:"site_user_fio"`
	GroupID      int64  `json:"group_id"`
	KidFirstName string `json:"kid_first_name"`
	KidLastName  string `json:"kid_last_name"`
}

// SiteUser is a requester profile from the siteuser endpoint.
type SiteUser struct {
	ID    int64  `json:"id"`
	Phone string `json:"phone"`
}

// EventGroup is group metadata from the eventGroups endpoint.
type EventGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ScheduleRow is one row from the eventGroupSchedule endpoint.
type ScheduleRow struct {
	WeekDays  []int  `json:"week_days"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
}

// RemoteClient talks to the CRM REST surface. All methods besides Login carry
// a bearer token and return ErrUnauthorized (possibly wrapped) on a 401 so the
// session layer can drive its single-retry path.
type RemoteClient interface {
	Login(ctx context.Context, email, password string) (token string, err error)
	Orders(ctx context.Context, token string) ([]RawOrder, error)
	SiteUser(ctx context.Context, token string, id int64) (*SiteUser, error)
	EventGroup(ctx context.Context, token string, id int64) (*EventGroup, error)
	GroupSchedule(ctx context.Context, token string, groupID int64) ([]ScheduleRow, error)
	Approve(ctx context.Context, token string, orderID int64, comment string) error
}
