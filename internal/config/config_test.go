package config

import (
	"runtime"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		env     map[string]string
		want    Config
		wantErr bool
	}{
		{
			name: "defaults",
			want: Config{Backend: "auto", Parallel: runtime.GOMAXPROCS(0), StartCodes: true},
		},
		{
			name: "all set",
			env: map[string]string{
				"DEBUG":                 "1",
				"NALSOURCE_BACKEND":     "FMP4",
				"NALSOURCE_PARALLEL":    "3",
				"NALSOURCE_START_CODES": "false",
			},
			want: Config{Debug: true, Backend: "fmp4", Parallel: 3, StartCodes: false},
		},
		{name: "zero parallel", env: map[string]string{"NALSOURCE_PARALLEL": "0"}, wantErr: true},
		{name: "bad parallel", env: map[string]string{"NALSOURCE_PARALLEL": "many"}, wantErr: true},
		{name: "bad start codes", env: map[string]string{"NALSOURCE_START_CODES": "maybe"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := load(func(k string) string { return tt.env[k] })
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("load = %+v, want %+v", got, tt.want)
			}
		})
	}
}
