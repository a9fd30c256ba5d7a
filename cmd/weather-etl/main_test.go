package main

import (
	"testing"

	"github.com/i474232898/weather-etl/internal/config"
)

func TestResolveCity(t *testing.T) {
	tests := []struct {
		name    string
		def     string
		flag    string
		want    string
		wantErr bool
	}{
		{name: "flag without default", flag: "Recife", want: "Recife"},
		{name: "flag overrides default", def: "London", flag: " Lisbon ", want: "Lisbon"},
		{name: "default only", def: "London", want: "London"},
		{name: "neither", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveCity(&config.AppConfig{DefaultCity: tt.def}, tt.flag)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got city %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
