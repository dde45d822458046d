package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:   "zero config is valid",
			config: Config{},
		},
		{
			name:   "populated config is valid",
			config: Config{DataDir: "/tmp/data", DatabaseFile: "x.db", BusyTimeoutMS: 100},
		},
		{
			name:    "negative busy timeout fails",
			config:  Config{BusyTimeoutMS: -1},
			wantErr: ErrBusyTimeoutInvalid,
		},
		{
			name:    "negative access TTL fails",
			config:  Config{AccessTTLSeconds: -5},
			wantErr: ErrAccessTTLInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigNormalize(t *testing.T) {
	got := Config{}.Normalize()
	if got.DatabaseFile != DefaultDatabaseFile {
		t.Errorf("database file: got %q, want %q", got.DatabaseFile, DefaultDatabaseFile)
	}
	if got.BusyTimeoutMS != DefaultBusyTimeoutMS {
		t.Errorf("busy timeout: got %d, want %d", got.BusyTimeoutMS, DefaultBusyTimeoutMS)
	}
	if got.AccessTTLSeconds != DefaultAccessTTL {
		t.Errorf("access TTL: got %d, want %d", got.AccessTTLSeconds, DefaultAccessTTL)
	}

	explicit := Config{DatabaseFile: "mine.db", BusyTimeoutMS: 1, AccessTTLSeconds: 2}.Normalize()
	if explicit.DatabaseFile != "mine.db" || explicit.BusyTimeoutMS != 1 || explicit.AccessTTLSeconds != 2 {
		t.Errorf("explicit values must survive Normalize, got %+v", explicit)
	}
}
