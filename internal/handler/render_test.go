package handler

import (
	"strings"
	"testing"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:               42,
		Status:           domain.StatusNew,
		StudentFirstName: "Иван",
		StudentLastName:  "Петров",
		RequesterName:    "Петрова Мария",
		RequesterPhone:   "+7 (900) 123-45-67",
		ContactLink:      "t.me/+79001234567",
		GroupName:        "Робототехника",
		Schedule: []domain.ScheduleEntry{
			{Days: []int{1, 3}, TimeStart: "10:00", TimeEnd: "11:30"},
		},
		EditLink: "https://crm.example.com/admin/#requests/edit/42",
	}
}

func TestRenderOrder(t *testing.T) {
	text := renderOrder(sampleOrder())

	lines := strings.Split(text, "\n")
	if lines[0] != "🆕 Новая" {
		t.Errorf("first line = %q, must be the status label", lines[0])
	}
	for _, want := range []string{
		"https://crm.example.com/admin/#requests/edit/42",
		"Робототехника",
		"ПН, СР 10:00-11:30",
		"Ученик: Петров Иван",
		"Родитель: Петрова Мария +7 (900) 123-45-67",
		"t.me/+79001234567",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered order misses %q:\n%s", want, text)
		}
	}
}

func TestRenderOrder_ContactUnavailable(t *testing.T) {
	o := sampleOrder()
	o.RequesterPhone = ""
	o.ContactLink = ""
	o.ContactUnavailable = true

	text := renderOrder(o)
	if !strings.Contains(text, "Контакт недоступен") {
		t.Errorf("missing unavailable marker:\n%s", text)
	}
	if strings.Contains(text, "t.me/") {
		t.Errorf("contact link rendered for an unavailable contact:\n%s", text)
	}
}

func TestRenderSchedule_SkipsUnknownWeekday(t *testing.T) {
	got := renderScheduleSlot(domain.ScheduleEntry{
		Days: []int{1, 9, 0}, TimeStart: "09:00", TimeEnd: "10:00",
	})
	if got != "ПН, ВС 09:00-10:00" {
		t.Errorf("slot = %q", got)
	}
}

func TestRewriteStatusLine(t *testing.T) {
	text := renderOrder(sampleOrder())
	rewritten := rewriteStatusLine(text)

	lines := strings.Split(rewritten, "\n")
	if lines[0] != "✅ Подтверждена" {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(rewritten, "Ученик: Петров Иван") {
		t.Error("body lost during the rewrite")
	}

	if got := rewriteStatusLine("🆕 Новая"); got != "✅ Подтверждена" {
		t.Errorf("single-line rewrite = %q", got)
	}
}

func TestActionKeyboard_Tokens(t *testing.T) {
	rows := actionKeyboard(42)
	if len(rows) != 1 || len(rows[0]) != 3 {
		t.Fatalf("keyboard shape = %v", rows)
	}
	for _, b := range rows[0] {
		if _, err := DecodeAction(b.Data); err != nil {
			t.Errorf("button %q carries a bad token: %v", b.Label, err)
		}
	}
	if rows[0][0].Data != "action:42:approve" {
		t.Errorf("approve token = %q", rows[0][0].Data)
	}
}

func TestCategoryKeyboard_Tokens(t *testing.T) {
	rows := categoryKeyboard(42, []string{"платно", "субсидия"})
	if len(rows) != 2 {
		t.Fatalf("keyboard shape = %v", rows)
	}
	if rows[0][0].Data != "confirm:42:платно" || rows[0][1].Data != "confirm:42:субсидия" {
		t.Errorf("category row = %v", rows[0])
	}
	if rows[1][0].Data != "custom:42" {
		t.Errorf("custom token = %q", rows[1][0].Data)
	}
}
