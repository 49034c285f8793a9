package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
	"github.com/dkurbatov/zayavki-bot/internal/service"
)

// UserLocker serializes triggers per user. The registry implements it.
type UserLocker interface {
	LockUser(chatID int64) (unlock func())
}

// Dispatcher routes normalized updates to the services and renders their
// results back through the transport. One trigger per user runs at a time;
// triggers from different users run concurrently.
type Dispatcher struct {
	transport    Transport
	users        domain.UserStore
	locker       UserLocker
	registration *service.RegistrationService
	orders       *service.OrderService
	approvals    *service.ApprovalService
	notices      *service.NoticeThrottle

	mu sync.Mutex
	// refs remembers, per chat, the order message a free-text comment
	// belongs to, so the submit can rewrite that message in place.
	refs map[int64]messageRef
}

type messageRef struct {
	orderID   int64
	messageID int
	text      string
}

func NewDispatcher(
	transport Transport,
	users domain.UserStore,
	locker UserLocker,
	registration *service.RegistrationService,
	orders *service.OrderService,
	approvals *service.ApprovalService,
	notices *service.NoticeThrottle,
) *Dispatcher {
	return &Dispatcher{
		transport:    transport,
		users:        users,
		locker:       locker,
		registration: registration,
		orders:       orders,
		approvals:    approvals,
		notices:      notices,
		refs:         make(map[int64]messageRef),
	}
}

// Dispatch handles one update to completion. Callers may run it on its own
// goroutine; the per-user lock keeps each user's triggers sequential.
func (d *Dispatcher) Dispatch(ctx context.Context, upd Update) {
	log := slog.With("trigger_id", uuid.NewString(), "chat_id", upd.ChatID)

	unlock := d.locker.LockUser(upd.ChatID)
	defer unlock()

	switch {
	case upd.Callback != nil:
		d.handleCallback(ctx, log, upd)
	case strings.HasPrefix(upd.Text, "/start"):
		d.handleStart(ctx, log, upd.ChatID)
	case strings.HasPrefix(upd.Text, "/list"):
		d.handleList(ctx, log, upd.ChatID)
	default:
		d.handleText(ctx, log, upd)
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, log *slog.Logger, chatID int64) {
	step := d.registration.Start(chatID)
	log.Info("registration started", "step", int(step))
	switch step {
	case service.RegPromptDisplayName:
		d.send(ctx, log, chatID, "📝 Введите ваше ФИО (для комментариев):")
	default:
		d.send(ctx, log, chatID, "🔐 Введите логин:")
	}
}

func (d *Dispatcher) handleList(ctx context.Context, log *slog.Logger, chatID int64) {
	if _, ok := d.users.Get(chatID); !ok {
		d.send(ctx, log, chatID, "❌ Вы не зарегистрированы. Используйте /start.")
		return
	}

	sent := 0
	for order, err := range d.orders.List(ctx, chatID) {
		if err != nil {
			var se *domain.StatusError
			if errors.As(err, &se) {
				log.Warn("order skipped", "error", err)
				d.send(ctx, log, chatID, fmt.Sprintf("⚠️ Заявка %d пропущена: неизвестный статус «%s».", se.OrderID, se.Code))
				continue
			}
			log.Error("list orders", "error", err)
			d.reportFailure(ctx, log, chatID, err)
			return
		}
		keyboard := actionKeyboard(order.ID)
		if _, err := d.transport.Send(ctx, chatID, renderOrder(order), keyboard); err != nil {
			log.Error("send order", "order_id", order.ID, "error", err)
		} else {
			sent++
		}
	}
	if sent == 0 {
		d.send(ctx, log, chatID, "📭 Нет активных заявок.")
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, log *slog.Logger, upd Update) {
	cb := upd.Callback
	act, err := DecodeAction(cb.Data)
	if err != nil {
		log.Warn("callback rejected", "data", cb.Data, "error", err)
		d.answer(ctx, log, cb.ID, "❌ Неизвестное действие.")
		return
	}
	log = log.With("order_id", act.OrderID, "verb", string(act.Verb))

	if _, ok := d.users.Get(upd.ChatID); !ok {
		d.answer(ctx, log, cb.ID, "❌ Вы не зарегистрированы.")
		return
	}

	switch {
	case act.Verb == VerbAction && act.Arg == "approve":
		d.answer(ctx, log, cb.ID, "")
		// A new approve gesture abandons any comment still being awaited.
		d.approvals.CancelPending(upd.ChatID)
		d.dropRef(upd.ChatID)
		keyboard := categoryKeyboard(act.OrderID, d.approvals.Categories())
		if err := d.transport.EditKeyboard(ctx, upd.ChatID, cb.MessageID, keyboard); err != nil {
			log.Error("show categories", "error", err)
		}

	case act.Verb == VerbAction:
		// pause and cancel are rendered but not wired to the CRM yet.
		d.answer(ctx, log, cb.ID, "⏳ Действие пока недоступно.")

	case act.Verb == VerbConfirm:
		d.answer(ctx, log, cb.ID, "")
		comment, err := d.approvals.Comment(upd.ChatID, act.Arg)
		if err != nil {
			d.reportCommentFailure(ctx, log, upd.ChatID, err)
			return
		}
		d.submitAndEdit(ctx, log, upd.ChatID, act.OrderID, cb.MessageID, cb.MessageText, comment)

	case act.Verb == VerbCustom:
		d.answer(ctx, log, cb.ID, "")
		d.approvals.RequestCustom(upd.ChatID, act.OrderID)
		d.mu.Lock()
		d.refs[upd.ChatID] = messageRef{orderID: act.OrderID, messageID: cb.MessageID, text: cb.MessageText}
		d.mu.Unlock()
		d.send(ctx, log, upd.ChatID, "🖋 Введите комментарий (например, 'бюджет', 'грант' и т.п.):")
	}
}

func (d *Dispatcher) dropRef(chatID int64) {
	d.mu.Lock()
	delete(d.refs, chatID)
	d.mu.Unlock()
}

func (d *Dispatcher) handleText(ctx context.Context, log *slog.Logger, upd Update) {
	if d.registration.Active(upd.ChatID) {
		d.handleRegistrationMessage(ctx, log, upd)
		return
	}

	if orderID, err := d.approvals.TakePending(upd.ChatID); err == nil {
		d.handleCustomComment(ctx, log, upd, orderID)
		return
	}

	d.send(ctx, log, upd.ChatID, "Используйте /start для регистрации или /list для списка заявок.")
}

func (d *Dispatcher) handleRegistrationMessage(ctx context.Context, log *slog.Logger, upd Update) {
	if d.registration.AwaitingPassword(upd.ChatID) {
		// The chat must not keep a plaintext password.
		if err := d.transport.Delete(ctx, upd.ChatID, upd.MessageID); err != nil {
			log.Warn("delete password message", "error", err)
		}
	}

	step, err := d.registration.HandleMessage(ctx, upd.ChatID, upd.Text)
	if err != nil {
		var authErr *domain.AuthError
		switch {
		case errors.As(err, &authErr) && authErr.Kind == domain.AuthUnreachable:
			log.Error("registration login", "error", err)
			d.send(ctx, log, upd.ChatID, "⚠️ Не удалось подключиться к сайту. Попробуйте позже.")
		case errors.As(err, &authErr):
			log.Warn("registration login rejected", "error", err)
			d.send(ctx, log, upd.ChatID, "❌ Ошибка входа. Проверьте логин и пароль.")
		default:
			log.Error("registration step", "error", err)
			d.send(ctx, log, upd.ChatID, "⚠️ Что-то пошло не так. Начните заново: /start.")
		}
		return
	}

	switch step {
	case service.RegPromptPassword:
		d.send(ctx, log, upd.ChatID, "🔑 Введите пароль (сообщение будет удалено):")
	case service.RegPromptDisplayName:
		d.send(ctx, log, upd.ChatID, "📝 Введите ваше ФИО (для комментариев):")
	case service.RegDone:
		d.send(ctx, log, upd.ChatID, "✅ Успешно! Используйте /list для списка заявок.")
	}
}

func (d *Dispatcher) handleCustomComment(ctx context.Context, log *slog.Logger, upd Update, orderID int64) {
	log = log.With("order_id", orderID)
	comment, err := d.approvals.Comment(upd.ChatID, strings.TrimSpace(upd.Text))
	if err != nil {
		d.reportCommentFailure(ctx, log, upd.ChatID, err)
		return
	}

	d.mu.Lock()
	ref, ok := d.refs[upd.ChatID]
	if ok && ref.orderID == orderID {
		delete(d.refs, upd.ChatID)
	} else {
		ok = false
	}
	d.mu.Unlock()

	if ok {
		d.submitAndEdit(ctx, log, upd.ChatID, orderID, ref.messageID, ref.text, comment)
		return
	}

	// No message to rewrite, report with a fresh one.
	if err := d.approvals.Submit(ctx, upd.ChatID, orderID, comment); err != nil {
		log.Error("approve order", "error", err)
		d.reportFailure(ctx, log, upd.ChatID, err)
		return
	}
	d.send(ctx, log, upd.ChatID, "✅ Подтверждена.")
}

// submitAndEdit approves the order and mutates its summary message: on
// success the status line flips and the keyboard goes away, on failure the
// action keyboard comes back with a warning under the summary.
func (d *Dispatcher) submitAndEdit(ctx context.Context, log *slog.Logger, chatID, orderID int64, messageID int, messageText, comment string) {
	err := d.approvals.Submit(ctx, chatID, orderID, comment)
	if err == nil {
		log.Info("order approved")
		if err := d.transport.EditText(ctx, chatID, messageID, rewriteStatusLine(messageText), nil); err != nil {
			log.Error("rewrite approved message", "error", err)
		}
		return
	}

	log.Error("approve order", "error", err)
	annotated := messageText + "\n\n" + failureAnnotation(err)
	if err := d.transport.EditText(ctx, chatID, messageID, annotated, actionKeyboard(orderID)); err != nil {
		log.Error("restore message after failed approve", "error", err)
	}
}

func failureAnnotation(err error) string {
	var authErr *domain.AuthError
	var cryptoErr *domain.CryptoError
	switch {
	case errors.As(err, &cryptoErr):
		return "🔒 Ошибка доступа. Перерегистрируйтесь: /start."
	case errors.As(err, &authErr) && authErr.Kind == domain.AuthInvalidCredentials:
		return "❌ Не удалось войти. Проверьте логин/пароль: /start."
	case errors.As(err, &authErr):
		return "⚠️ Не удалось подключиться к сайту. Попробуйте позже."
	default:
		return "⚠️ Ошибка: не удалось подтвердить."
	}
}

// reportFailure sends the user-facing text for a failed trigger. Repeating
// connectivity notices are throttled so a dead CRM does not spam the chat.
func (d *Dispatcher) reportFailure(ctx context.Context, log *slog.Logger, chatID int64, err error) {
	if errors.Is(err, domain.ErrNotRegistered) {
		d.send(ctx, log, chatID, "❌ Вы не зарегистрированы. Используйте /start.")
		return
	}

	var transportErr *domain.TransportError
	var authErr *domain.AuthError
	unreachable := errors.As(err, &transportErr) ||
		(errors.As(err, &authErr) && authErr.Kind == domain.AuthUnreachable)
	if unreachable {
		if d.notices == nil || d.notices.Allow(chatID) {
			d.send(ctx, log, chatID, "⚠️ Не удалось подключиться к сайту. Попробуйте позже.")
		}
		return
	}

	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		d.send(ctx, log, chatID, fmt.Sprintf("⚠️ Ошибка сайта: %d.", remoteErr.Status))
		return
	}

	d.send(ctx, log, chatID, failureAnnotation(err))
}

func (d *Dispatcher) reportCommentFailure(ctx context.Context, log *slog.Logger, chatID int64, err error) {
	if errors.Is(err, domain.ErrNoDisplayName) {
		d.send(ctx, log, chatID, "📝 Сначала укажите ФИО: /start.")
		return
	}
	d.reportFailure(ctx, log, chatID, err)
}

func (d *Dispatcher) send(ctx context.Context, log *slog.Logger, chatID int64, text string) {
	if _, err := d.transport.Send(ctx, chatID, text, nil); err != nil {
		log.Error("send message", "error", err)
	}
}

func (d *Dispatcher) answer(ctx context.Context, log *slog.Logger, callbackID, text string) {
	if err := d.transport.AnswerCallback(ctx, callbackID, text); err != nil {
		log.Warn("answer callback", "error", err)
	}
}
