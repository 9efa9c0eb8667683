// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Name  string  `koanf:"name" validate:"notblank"`
	URL   string  `koanf:"url" validate:"required,url"`
	Kind  string  `koanf:"kind" validate:"oneof=movie series"`
	Ratio float64 `koanf:"ratio" validate:"gte=0,lte=1"`
}

type wrapper struct {
	Inner sample `koanf:"inner"`
}

func TestValidateStruct_Valid(t *testing.T) {
	s := sample{Name: "x", URL: "http://localhost:8096", Kind: "movie", Ratio: 0.5}
	if err := ValidateStruct(&s); err != nil {
		t.Fatalf("ValidateStruct() = %v, want nil", err)
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	tests := []struct {
		name      string
		input     sample
		wantField string
		wantMsg   string
	}{
		{
			name:      "blank name",
			input:     sample{Name: "   ", URL: "http://a", Kind: "movie"},
			wantField: "name",
			wantMsg:   "name must not be blank",
		},
		{
			name:      "bad url",
			input:     sample{Name: "a", URL: "not a url", Kind: "movie"},
			wantField: "url",
			wantMsg:   "url must be a valid URL",
		},
		{
			name:      "bad kind",
			input:     sample{Name: "a", URL: "http://a", Kind: "track"},
			wantField: "kind",
			wantMsg:   "kind must be one of: movie series",
		},
		{
			name:      "ratio too large",
			input:     sample{Name: "a", URL: "http://a", Kind: "series", Ratio: 2},
			wantField: "ratio",
			wantMsg:   "ratio must be less than or equal to 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateStruct() = %v, want *Error", err)
			}
			if len(verr.Fields) != 1 {
				t.Fatalf("len(Fields) = %d, want 1 (%v)", len(verr.Fields), verr)
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Fields[0].Field, tt.wantField)
			}
			if verr.Fields[0].Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", verr.Fields[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateStruct_NestedPath(t *testing.T) {
	w := wrapper{Inner: sample{Name: "a", Kind: "movie"}}
	err := ValidateStruct(&w)
	if err == nil {
		t.Fatal("expected error for missing url")
	}
	if !strings.Contains(err.Error(), "inner.url is required") {
		t.Errorf("error = %q, want nested key path", err.Error())
	}
}
