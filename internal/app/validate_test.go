package app

import (
	"encoding/json"
	"testing"
)

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, limit, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{23, 10, 3},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := totalPages(tc.total, tc.limit); got != tc.want {
			t.Errorf("totalPages(%d, %d) = %d, want %d", tc.total, tc.limit, got, tc.want)
		}
	}
}

func TestValidateNameCountsRunes(t *testing.T) {
	if _, err := validateName("Ö"); err == nil {
		t.Fatal("expected a single rune to be rejected")
	}
	name, err := validateName("  Öl  ")
	if err != nil || name != "Öl" {
		t.Fatalf("expected trimmed two-rune name, got %q (%v)", name, err)
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList([]string{"1, 2", "3", ""})
	if err != nil || len(ids) != 3 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v (%v)", ids, err)
	}
	if _, err := parseIDList([]string{"1,x"}); err == nil {
		t.Fatal("expected invalid id to be rejected")
	}
}

func TestFlexIDAcceptsNumbersAndStrings(t *testing.T) {
	var in struct {
		A flexID `json:"a"`
		B flexID `json:"b"`
		C flexID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 7, "b": "8", "c": null}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.A != 7 || in.B != 8 || in.C != 0 {
		t.Fatalf("unexpected ids %+v", in)
	}
	if err := json.Unmarshal([]byte(`{"a": "seven"}`), &in); err == nil {
		t.Fatal("expected non-numeric id to fail")
	}
}

func TestMapErrorHidesUnknownErrors(t *testing.T) {
	status, code, message, _ := mapError(validationError("bad"))
	if status != 400 || code != "VALIDATION_ERROR" || message != "bad" {
		t.Fatalf("unexpected mapping %d %s %s", status, code, message)
	}
	status, code, message, _ = mapError(json.Unmarshal([]byte("{"), &struct{}{}))
	if status != 500 || code != "SERVER_ERROR" || message != "Server error" {
		t.Fatalf("unexpected mapping %d %s %s", status, code, message)
	}
}

func TestValidatePageCapsLimit(t *testing.T) {
	cases := []struct {
		page, limit, want int
		wantErr           bool
	}{
		{page: 1, limit: 10, want: 10},
		{page: 1, limit: 100, want: 100},
		{page: 2, limit: 101, want: 100},
		{page: 1, limit: 0, wantErr: true},
		{page: 0, limit: 10, wantErr: true},
	}
	for _, tc := range cases {
		got, err := validatePage(tc.page, tc.limit)
		if (err != nil) != tc.wantErr {
			t.Fatalf("validatePage(%d, %d) error = %v, wantErr %v", tc.page, tc.limit, err, tc.wantErr)
		}
		if !tc.wantErr && got != tc.want {
			t.Fatalf("validatePage(%d, %d) = %d, want %d", tc.page, tc.limit, got, tc.want)
		}
	}
}
