package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/you/turnbell/internal/core"
)

const (
	maxBodyBytes    = 64 << 10
	maxRound        = 10000
	maxGameNameLen  = 200
	maxUserNameLen  = 100
	defaultCivName  = "Unknown Civ"
	defaultLeader   = "Unknown Leader"
	contentTypeJSON = "application/json"
)

var requiredFields = []string{"gameName", "userName", "round"}

// errUnreadable marks a body that could not be decoded at all, as opposed
// to one that decoded but failed validation.
var errUnreadable = errors.New("unreadable payload")

// ParsePayload reads a turn notification sent as JSON or as a form.
func ParsePayload(r *http.Request) (core.TurnEvent, error) {
	fields, err := readFields(r)
	if err != nil {
		return core.TurnEvent{}, err
	}
	if err := validateFields(fields); err != nil {
		return core.TurnEvent{}, err
	}
	ev := core.TurnEvent{
		GameID:     fields["gameId"],
		GameName:   fields["gameName"],
		UserName:   fields["userName"],
		Round:      fields["round"],
		CivName:    fields["civName"],
		LeaderName: fields["leaderName"],
	}
	if ev.CivName == "" {
		ev.CivName = defaultCivName
	}
	if ev.LeaderName == "" {
		ev.LeaderName = defaultLeader
	}
	return ev, nil
}

func readFields(r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(r.Header.Get("Content-Type"), contentTypeJSON) {
		return readJSONFields(r.Body)
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, errors.Wrap(errUnreadable, err.Error())
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, errors.Wrap(errUnreadable, err.Error())
	}
	fields := make(map[string]string)
	for _, name := range []string{"gameId", "gameName", "userName", "round", "civName", "leaderName"} {
		if v := r.PostForm.Get(name); v != "" {
			fields[name] = v
		}
	}
	return fields, nil
}

func readJSONFields(body io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(errUnreadable, err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(errUnreadable, err.Error())
	}
	if raw == nil {
		return nil, errors.New("empty payload")
	}

	fields := make(map[string]string, len(raw))
	for name, value := range raw {
		if name == "round" {
			if n, ok := jsonRound(value); ok {
				fields[name] = n
				continue
			}
		}
		switch v := value.(type) {
		case nil:
		case string:
			fields[name] = v
		case json.Number:
			fields[name] = v.String()
		case bool:
			if v {
				fields[name] = "True"
			}
		default:
			fields[name] = fmt.Sprint(v)
		}
	}
	return fields, nil
}

// jsonRound reads a JSON round that is a whole number written as a float
// (5.0, 5e0) or the literal true, and renders it as a plain integer.
func jsonRound(value any) (string, bool) {
	switch v := value.(type) {
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return v.String(), true
		}
		f, err := v.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > maxRound+1 {
			return "", false
		}
		return strconv.FormatInt(int64(f), 10), true
	case bool:
		if v {
			return "1", true
		}
	}
	return "", false
}

func validateFields(fields map[string]string) error {
	if len(fields) == 0 {
		return errors.New("empty payload")
	}
	for _, name := range requiredFields {
		if strings.TrimSpace(fields[name]) == "" {
			return errors.Errorf("missing or empty required field: %s", name)
		}
	}

	round, err := strconv.Atoi(strings.TrimSpace(fields["round"]))
	if err != nil {
		return errors.New("round must be a number")
	}
	if round < 0 || round > maxRound {
		return errors.New("invalid round number")
	}

	if utf8.RuneCountInString(fields["gameName"]) > maxGameNameLen {
		return errors.New("game name too long")
	}
	if utf8.RuneCountInString(fields["userName"]) > maxUserNameLen {
		return errors.New("username too long")
	}
	return nil
}
