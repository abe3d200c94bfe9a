package service

import "testing"

func TestNewUser(t *testing.T) {
	a, err := NewUser("  小明 ", "")
	if err != nil {
		t.Fatalf("NewUser() error = %v", err)
	}
	if a.Nickname != "小明" {
		t.Errorf("Nickname = %q, want trimmed", a.Nickname)
	}
	b, _ := NewUser("小明", "")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("NewUser() ids = %q, %q; want distinct", a.ID, b.ID)
	}
	if _, err := NewUser(" ", ""); err != ErrInvalidInput {
		t.Errorf("NewUser(blank) error = %v, want ErrInvalidInput", err)
	}
}
