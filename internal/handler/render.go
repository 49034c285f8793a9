package handler

import (
	"strings"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
)

// renderOrder builds the plain-text message for one order. The first line is
// always the status label; rewriteStatusLine relies on that.
func renderOrder(o domain.Order) string {
	var b strings.Builder
	b.WriteString(o.Status.Label())
	b.WriteString("\nПерейти к заявке: ")
	b.WriteString(o.EditLink)
	b.WriteByte('\n')
	if o.GroupName != "" {
		b.WriteString(o.GroupName)
		b.WriteByte('\n')
	}
	for _, slot := range o.Schedule {
		b.WriteString(renderScheduleSlot(slot))
		b.WriteByte('\n')
	}

	b.WriteString("\nУченик: ")
	b.WriteString(strings.TrimSpace(o.StudentLastName + " " + o.StudentFirstName))
	b.WriteString("\nРодитель: ")
	b.WriteString(strings.TrimSpace(o.RequesterName + " " + o.RequesterPhone))
	if o.ContactUnavailable {
		b.WriteString("\nКонтакт недоступен")
	} else if o.ContactLink != "" {
		b.WriteByte('\n')
		b.WriteString(o.ContactLink)
	}
	return b.String()
}

// renderScheduleSlot formats one weekly slot: "ПН, СР 10:00-11:30". Weekday
// codes outside the known table are skipped.
func renderScheduleSlot(slot domain.ScheduleEntry) string {
	var days []string
	for _, code := range slot.Days {
		if label, ok := domain.WeekdayLabel(code); ok {
			days = append(days, label)
		}
	}
	return strings.Join(days, ", ") + " " + slot.TimeStart + "-" + slot.TimeEnd
}

// rewriteStatusLine replaces the leading status line with the approved label.
func rewriteStatusLine(text string) string {
	rest := ""
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		rest = text[i:]
	}
	return domain.StatusApproved.Label() + rest
}

// actionKeyboard is the per-order affordance row.
func actionKeyboard(orderID int64) [][]Button {
	return [][]Button{{
		{Label: "✅ Подтвердить", Data: EncodeAction(Action{Verb: VerbAction, OrderID: orderID, Arg: "approve"})},
		{Label: "⏸️ Отложить", Data: EncodeAction(Action{Verb: VerbAction, OrderID: orderID, Arg: "pause"})},
		{Label: "❌ Отменить", Data: EncodeAction(Action{Verb: VerbAction, OrderID: orderID, Arg: "cancel"})},
	}}
}

// categoryKeyboard offers the comment categories after an approve tap.
func categoryKeyboard(orderID int64, categories []string) [][]Button {
	labels := map[string]string{
		"платно":   "✅ Платно",
		"субсидия": "🏛 Субсидия",
	}
	var row []Button
	for _, cat := range categories {
		label, ok := labels[cat]
		if !ok {
			label = cat
		}
		row = append(row, Button{
			Label: label,
			Data:  EncodeAction(Action{Verb: VerbConfirm, OrderID: orderID, Arg: cat}),
		})
	}
	return [][]Button{
		row,
		{{Label: "✏️ Другое", Data: EncodeAction(Action{Verb: VerbCustom, OrderID: orderID})}},
	}
}
