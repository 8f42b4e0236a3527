package repositorycache

import "testing"

type OrderItem struct{}
type HTTPSession struct{}
type user struct{}

func TestEntityName(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"camel case", EntityName[OrderItem](), "order_item"},
		{"pointer", EntityName[*OrderItem](), "order_item"},
		{"acronym", EntityName[HTTPSession](), "http_session"},
		{"lower case", EntityName[user](), "user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"user":       "User",
		"order_item": "Order item",
		"OrderItem":  "Order item",
		"":           "",
	}
	for in, want := range tests {
		if got := displayName(in); got != want {
			t.Errorf("displayName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"OrderItem":       "order_item",
		"HTTPServer":      "http_server",
		"Order2Item":      "order_2_item",
		"already_snake":   "already_snake",
		"Page[main.User]": "page_main_user",
		"-Trim Me-":       "trim_me",
	}
	for in, want := range tests {
		if got := toSnake(in); got != want {
			t.Errorf("toSnake(%q): expected %q, got %q", in, want, got)
		}
	}
}
