package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
)

// OrderService assembles display-ready orders by joining the raw order list
// with the requester, group and schedule endpoints.
type OrderService struct {
	sessions *SessionManager
	remote   domain.RemoteClient
	baseURL  string
}

func NewOrderService(sessions *SessionManager, remote domain.RemoteClient, baseURL string) *OrderService {
	return &OrderService{
		sessions: sessions,
		remote:   remote,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// List yields the user's orders in raw-list order, one assembled Order per
// raw row. A failed auxiliary lookup degrades the single order it belongs to;
// an unknown status code yields (zero Order, *StatusError) for that row only.
// Only fetching the raw list itself can fail the whole sequence, as a single
// (zero Order, err) pair. The sequence is single use.
func (s *OrderService) List(ctx context.Context, chatID int64) iter.Seq2[domain.Order, error] {
	return func(yield func(domain.Order, error) bool) {
		var raw []domain.RawOrder
		err := s.sessions.WithSession(ctx, chatID, func(ctx context.Context, token string) error {
			var err error
			raw, err = s.remote.Orders(ctx, token)
			return err
		})
		if err != nil {
			yield(domain.Order{}, fmt.Errorf("fetch orders: %w", err))
			return
		}

		seen := make(map[int64]bool, len(raw))
		for _, row := range raw {
			if seen[row.ID] {
				continue
			}
			seen[row.ID] = true

			order, err := s.assemble(ctx, chatID, row)
			if !yield(order, err) {
				return
			}
		}
	}
}

// assemble joins one raw order with its three auxiliary lookups. The lookups
// run concurrently; each tolerates its own failure except an expired session,
// which must bubble so the session layer can refresh and retry.
func (s *OrderService) assemble(ctx context.Context, chatID int64, raw domain.RawOrder) (domain.Order, error) {
	status, err := domain.ParseStatus(raw.State)
	if err != nil {
		var se *domain.StatusError
		if errors.As(err, &se) {
			se.OrderID = raw.ID
		}
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:               raw.ID,
		Status:           status,
		StudentFirstName: raw.KidFirstName,
		StudentLastName:  raw.KidLastName,
		RequesterName:    raw.SiteUserFIO,
		GroupID:          raw.GroupID,
		EditLink:         fmt.Sprintf("%s/admin/#requests/edit/%d", s.baseURL, raw.ID),
	}

	err = s.sessions.WithSession(ctx, chatID, func(ctx context.Context, token string) error {
		var (
			requester *domain.SiteUser
			group     *domain.EventGroup
			schedule  []domain.ScheduleRow
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			requester, err = s.remote.SiteUser(gctx, token, raw.SiteUserID)
			return tolerate("siteuser", raw.ID, err)
		})
		g.Go(func() error {
			var err error
			group, err = s.remote.EventGroup(gctx, token, raw.GroupID)
			return tolerate("event group", raw.ID, err)
		})
		g.Go(func() error {
			var err error
			schedule, err = s.remote.GroupSchedule(gctx, token, raw.GroupID)
			return tolerate("group schedule", raw.ID, err)
		})
		if err := g.Wait(); err != nil {
			return err
		}

		if requester != nil && requester.Phone != "" {
			order.RequesterPhone = requester.Phone
			order.ContactLink = "t.me/" + normalizePhone(requester.Phone)
		} else {
			order.ContactUnavailable = true
		}
		if group != nil {
			order.GroupName = group.Name
		}
		order.Schedule = order.Schedule[:0]
		for _, row := range schedule {
			order.Schedule = append(order.Schedule, domain.ScheduleEntry{
				Days:      row.WeekDays,
				TimeStart: row.TimeStart,
				TimeEnd:   row.TimeEnd,
			})
		}
		return nil
	})
	if err != nil {
		// The joins could not run at all. The raw row still renders,
		// just without contact, group name or schedule.
		slog.Warn("order joins skipped", "order_id", raw.ID, "error", err)
		order.ContactUnavailable = true
	}
	return order, nil
}

// tolerate swallows a single lookup failure so one broken join cannot sink
// the whole order. Unauthorized is the exception: it must reach WithSession.
func tolerate(what string, orderID int64, err error) error {
	if err == nil || errors.Is(err, domain.ErrUnauthorized) {
		return err
	}
	slog.Warn("order lookup failed", "lookup", what, "order_id", orderID, "error", err)
	return nil
}

// normalizePhone strips the formatting the CRM stores phones with, leaving
// a string usable in a t.me link.
func normalizePhone(phone string) string {
	return strings.NewReplacer("(", "", ")", "", "-", "", " ", "").Replace(phone)
}
