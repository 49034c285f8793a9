package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
)

type joinRemote struct {
	orders    []domain.RawOrder
	ordersErr error

	siteUsers map[int64]*domain.SiteUser
	groups    map[int64]*domain.EventGroup
	schedules map[int64][]domain.ScheduleRow

	siteUserErr map[int64]error
	scheduleErr map[int64]error
	groupErr    map[int64]error
}

func (r *joinRemote) Login(context.Context, string, string) (string, error) {
	return "token", nil
}

func (r *joinRemote) Orders(context.Context, string) ([]domain.RawOrder, error) {
	return r.orders, r.ordersErr
}

func (r *joinRemote) SiteUser(_ context.Context, _ string, id int64) (*domain.SiteUser, error) {
	if err := r.siteUserErr[id]; err != nil {
		return nil, err
	}
	if u, ok := r.siteUsers[id]; ok {
		return u, nil
	}
	return nil, &domain.RemoteError{Op: "siteuser", Status: 404}
}

func (r *joinRemote) EventGroup(_ context.Context, _ string, id int64) (*domain.EventGroup, error) {
	if err := r.groupErr[id]; err != nil {
		return nil, err
	}
	if g, ok := r.groups[id]; ok {
		return g, nil
	}
	return nil, &domain.RemoteError{Op: "eventGroups", Status: 404}
}

func (r *joinRemote) GroupSchedule(_ context.Context, _ string, groupID int64) ([]domain.ScheduleRow, error) {
	if err := r.scheduleErr[groupID]; err != nil {
		return nil, err
	}
	return r.schedules[groupID], nil
}

func (r *joinRemote) Approve(context.Context, string, int64, string) error {
	return errors.New("not implemented")
}

func rawOrder(id int64, state string) domain.RawOrder {
	return domain.RawOrder{
		ID:           id,
		State:        state,
		SiteUserID:   100 + id,
		SiteUserFIO:  fmt.Sprintf("Родитель %d", id),
		GroupID:      200 + id,
		KidFirstName: "Имя",
		KidLastName:  fmt.Sprintf("Фамилия%d", id),
	}
}

func orderFixture(orders ...domain.RawOrder) *joinRemote {
	r := &joinRemote{
		orders:      orders,
		siteUsers:   make(map[int64]*domain.SiteUser),
		groups:      make(map[int64]*domain.EventGroup),
		schedules:   make(map[int64][]domain.ScheduleRow),
		siteUserErr: make(map[int64]error),
		scheduleErr: make(map[int64]error),
		groupErr:    make(map[int64]error),
	}
	for _, o := range orders {
		r.siteUsers[o.SiteUserID] = &domain.SiteUser{ID: o.SiteUserID, Phone: "+7 (900) 123-45-67"}
		r.groups[o.GroupID] = &domain.EventGroup{ID: o.GroupID, Name: fmt.Sprintf("Группа %d", o.GroupID)}
		r.schedules[o.GroupID] = []domain.ScheduleRow{
			{WeekDays: []int{1, 3}, TimeStart: "10:00", TimeEnd: "11:30"},
		}
	}
	return r
}

func orderService(t *testing.T, remote domain.RemoteClient) *OrderService {
	t.Helper()
	v := testVault(t)
	store := newFakeStore(registeredUser(t, v, 1, domain.NewSession("token", time.Time{})))
	sessions := NewSessionManager(store, remote, v, nil)
	return NewOrderService(sessions, remote, "https://crm.example.com/")
}

func collect(t *testing.T, svc *OrderService, chatID int64) ([]domain.Order, []error) {
	t.Helper()
	var orders []domain.Order
	var errs []error
	for order, err := range svc.List(context.Background(), chatID) {
		orders = append(orders, order)
		errs = append(errs, err)
	}
	return orders, errs
}

func TestList_AssemblesOrders(t *testing.T) {
	remote := orderFixture(rawOrder(1, "initial"))
	svc := orderService(t, remote)

	orders, errs := collect(t, svc, 1)
	if len(orders) != 1 || errs[0] != nil {
		t.Fatalf("got %d orders, errs %v", len(orders), errs)
	}

	o := orders[0]
	if o.Status != domain.StatusNew {
		t.Errorf("status = %q, want initial", o.Status)
	}
	if o.RequesterPhone != "+7 (900) 123-45-67" {
		t.Errorf("phone = %q", o.RequesterPhone)
	}
	if o.ContactLink != "t.me/+79001234567" {
		t.Errorf("contact link = %q, want normalized t.me link", o.ContactLink)
	}
	if o.GroupName != "Группа 201" {
		t.Errorf("group name = %q", o.GroupName)
	}
	if len(o.Schedule) != 1 || o.Schedule[0].TimeStart != "10:00" {
		t.Errorf("schedule = %+v", o.Schedule)
	}
	if o.EditLink != "https://crm.example.com/admin/#requests/edit/1" {
		t.Errorf("edit link = %q", o.EditLink)
	}
	if o.ContactUnavailable {
		t.Error("contact marked unavailable with a healthy requester lookup")
	}
}

func TestList_ToleratesSingleJoinFailure(t *testing.T) {
	remote := orderFixture(rawOrder(1, "initial"), rawOrder(2, "pause"), rawOrder(3, "study"))
	remote.scheduleErr[202] = &domain.RemoteError{Op: "eventGroupSchedule", Status: 502}
	svc := orderService(t, remote)

	orders, errs := collect(t, svc, 1)
	if len(orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(orders))
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("order %d carried error %v", i, err)
		}
	}
	if len(orders[1].Schedule) != 0 {
		t.Errorf("broken schedule join produced %+v", orders[1].Schedule)
	}
	if orders[1].GroupName == "" {
		t.Error("group name lost to an unrelated schedule failure")
	}
	if len(orders[0].Schedule) != 1 || len(orders[2].Schedule) != 1 {
		t.Error("healthy orders lost their schedules")
	}
}

func TestList_RequesterFailureMarksContactUnavailable(t *testing.T) {
	remote := orderFixture(rawOrder(1, "initial"))
	remote.siteUserErr[101] = &domain.TransportError{Op: "siteuser", Err: errors.New("timeout")}
	svc := orderService(t, remote)

	orders, errs := collect(t, svc, 1)
	if len(orders) != 1 || errs[0] != nil {
		t.Fatalf("got %d orders, errs %v", len(orders), errs)
	}
	if !orders[0].ContactUnavailable {
		t.Error("expected ContactUnavailable after a failed requester lookup")
	}
	if orders[0].ContactLink != "" {
		t.Errorf("contact link = %q, want empty", orders[0].ContactLink)
	}
	if orders[0].RequesterName == "" {
		t.Error("requester name from the raw row must survive the failed lookup")
	}
}

func TestList_UnknownStatusIsolated(t *testing.T) {
	remote := orderFixture(rawOrder(1, "initial"), rawOrder(2, "archived"), rawOrder(3, "approve"))
	svc := orderService(t, remote)

	orders, errs := collect(t, svc, 1)
	if len(orders) != 3 {
		t.Fatalf("got %d rows, want 3", len(orders))
	}

	var se *domain.StatusError
	if !errors.As(errs[1], &se) {
		t.Fatalf("row 2: got %v, want StatusError", errs[1])
	}
	if se.OrderID != 2 || se.Code != "archived" {
		t.Errorf("StatusError = %+v", se)
	}
	if errs[0] != nil || errs[2] != nil {
		t.Errorf("healthy rows carried errors: %v, %v", errs[0], errs[2])
	}
	if orders[0].ID != 1 || orders[2].ID != 3 {
		t.Error("healthy rows lost their identity")
	}
}

func TestList_DeduplicatesFirstWins(t *testing.T) {
	first := rawOrder(7, "initial")
	dup := rawOrder(7, "pause")
	remote := orderFixture(first, dup, rawOrder(8, "study"))
	svc := orderService(t, remote)

	orders, _ := collect(t, svc, 1)
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	if orders[0].ID != 7 || orders[0].Status != domain.StatusNew {
		t.Errorf("first occurrence must win: %+v", orders[0])
	}
	if orders[1].ID != 8 {
		t.Errorf("second order = %+v", orders[1])
	}
}

func TestList_FetchFailure(t *testing.T) {
	remote := orderFixture()
	remote.ordersErr = &domain.RemoteError{Op: "order", Status: 500}
	svc := orderService(t, remote)

	orders, errs := collect(t, svc, 1)
	if len(orders) != 1 || errs[0] == nil {
		t.Fatalf("want a single error pair, got %d orders, errs %v", len(orders), errs)
	}
	var re *domain.RemoteError
	if !errors.As(errs[0], &re) {
		t.Fatalf("got %v, want RemoteError", errs[0])
	}
}

func TestList_UnregisteredUser(t *testing.T) {
	svc := orderService(t, orderFixture())

	_, errs := collect(t, svc, 42)
	if len(errs) != 1 || !errors.Is(errs[0], domain.ErrNotRegistered) {
		t.Fatalf("got %v, want ErrNotRegistered", errs)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+7 (900) 123-45-67": "+79001234567",
		"89001234567":        "89001234567",
		"+7-900-123 45 67":   "+79001234567",
	}
	for in, want := range cases {
		if got := normalizePhone(in); got != want {
			t.Errorf("normalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
