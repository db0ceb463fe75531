package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/pydt-webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/pydt-webhook", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParsePayloadJSON(t *testing.T) {
	ev, err := ParsePayload(jsonRequest(`{"gameName":"Alpha","userName":"bob","round":12,"civName":"Rome","leaderName":"Trajan","gameId":"g-1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.GameName != "Alpha" || ev.UserName != "bob" || ev.Round != "12" || ev.GameID != "g-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.CivName != "Rome" || ev.LeaderName != "Trajan" {
		t.Fatalf("unexpected civ/leader: %+v", ev)
	}
}

func TestParsePayloadFormDefaults(t *testing.T) {
	ev, err := ParsePayload(formRequest(url.Values{
		"gameName": {"Alpha"},
		"userName": {"bob"},
		"round":    {"3"},
	}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Round != "3" {
		t.Fatalf("expected round 3, got %q", ev.Round)
	}
	if ev.CivName != "Unknown Civ" || ev.LeaderName != "Unknown Leader" {
		t.Fatalf("expected defaults, got %+v", ev)
	}
}

func TestParsePayloadRoundZeroAccepted(t *testing.T) {
	if _, err := ParsePayload(jsonRequest(`{"gameName":"A","userName":"b","round":0}`)); err != nil {
		t.Fatalf("round 0 should be valid: %v", err)
	}
}

func TestParsePayloadLooseJSONRound(t *testing.T) {
	tests := map[string]string{
		`5.0`:  "5",
		`7e0`:  "7",
		`true`: "1",
		`"12"`: "12",
	}
	for raw, want := range tests {
		ev, err := ParsePayload(jsonRequest(`{"gameName":"A","userName":"b","round":` + raw + `}`))
		if err != nil {
			t.Fatalf("round %s: %v", raw, err)
		}
		if ev.Round != want {
			t.Fatalf("round %s parsed as %q, want %q", raw, ev.Round, want)
		}
	}
}

func TestParsePayloadRejects(t *testing.T) {
	long := strings.Repeat("x", 201)
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"missing user", `{"gameName":"A","round":1}`},
		{"blank game", `{"gameName":"   ","userName":"b","round":1}`},
		{"null round", `{"gameName":"A","userName":"b","round":null}`},
		{"round not a number", `{"gameName":"A","userName":"b","round":"seven"}`},
		{"round negative", `{"gameName":"A","userName":"b","round":-1}`},
		{"round too large", `{"gameName":"A","userName":"b","round":10001}`},
		{"round fractional", `{"gameName":"A","userName":"b","round":5.5}`},
		{"round float too large", `{"gameName":"A","userName":"b","round":1e9}`},
		{"round false", `{"gameName":"A","userName":"b","round":false}`},
		{"game name too long", `{"gameName":"` + long + `","userName":"b","round":1}`},
		{"user name too long", `{"gameName":"A","userName":"` + long[:101] + `","round":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(jsonRequest(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, errUnreadable) {
				t.Fatalf("expected validation error, got unreadable: %v", err)
			}
		})
	}
}

func TestParsePayloadLengthCountsRunes(t *testing.T) {
	name := strings.Repeat("é", 200)
	if _, err := ParsePayload(jsonRequest(`{"gameName":"` + name + `","userName":"b","round":1}`)); err != nil {
		t.Fatalf("200 runes should be accepted: %v", err)
	}
}

func TestParsePayloadMalformedJSON(t *testing.T) {
	_, err := ParsePayload(jsonRequest(`{"gameName":`))
	if !errors.Is(err, errUnreadable) {
		t.Fatalf("expected unreadable error, got %v", err)
	}
	_, err = ParsePayload(jsonRequest(`["not","an","object"]`))
	if !errors.Is(err, errUnreadable) {
		t.Fatalf("expected unreadable error for array, got %v", err)
	}
}
