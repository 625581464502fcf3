package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// browserCookie is one entry of a browser extension cookie export
type browserCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseCookies reads cookies pasted by an operator: either a JSON object of
// name to value, or the array of {name, value} objects that browser cookie
// export extensions produce.
func ParseCookies(data []byte) (Cookies, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("no cookies given")
	}

	var out Cookies
	if strings.HasPrefix(trimmed, "[") {
		var list []browserCookie
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, fmt.Errorf("invalid cookie export: %w", err)
		}
		out = make(Cookies, len(list))
		for _, c := range list {
			if c.Name != "" {
				out[c.Name] = c.Value
			}
		}
	} else if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("invalid cookie JSON: %w", err)
	}

	if len(out) == 0 {
		return nil, errors.New("no cookies given")
	}
	return out, nil
}

// Require checks that every named cookie is present and non-empty
func (c Cookies) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if c[n] == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing cookies: %s", strings.Join(missing, ", "))
	}
	return nil
}
