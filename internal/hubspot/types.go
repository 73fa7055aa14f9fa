package hubspot

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString accepts ids sent either as "123" or 123.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

/* -------- Responses -------- */

type listServicesResponse struct {
	Results []serviceObject `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (r listServicesResponse) nextAfter() string {
	if r.Paging == nil || r.Paging.Next == nil {
		return ""
	}
	return r.Paging.Next.After
}

type serviceObject struct {
	ID           FlexString         `json:"id"`
	Properties   map[string]*string `json:"properties"`
	Associations struct {
		Companies struct {
			Results []association `json:"results"`
		} `json:"companies"`
	} `json:"associations"`
}

type association struct {
	ID   FlexString `json:"id"`
	Type string     `json:"type"`
}

type companyObject struct {
	ID         FlexString         `json:"id"`
	Properties map[string]*string `json:"properties"`
}

type ownerObject struct {
	ID        FlexString `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
}

func prop(props map[string]*string, key string) *string {
	if v, ok := props[key]; ok && v != nil {
		s := *v
		return &s
	}
	return nil
}

func propString(props map[string]*string, key string) string {
	if v := prop(props, key); v != nil {
		return *v
	}
	return ""
}
