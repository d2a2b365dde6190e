package export

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestGenerateObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name       string
		companyID  string
		wantPrefix string
		wantErr    error
	}{
		{
			name:       "plain company id",
			companyID:  "com_acme",
			wantPrefix: "exports/com_acme/2026-03-01T12-30-45-",
		},
		{
			name:       "path characters stripped",
			companyID:  "com/../../etc",
			wantPrefix: "exports/cometc/2026-03-01T12-30-45-",
		},
		{
			name:      "empty company id",
			companyID: "",
			wantErr:   ErrInvalidCompanyID,
		},
		{
			name:      "only dangerous characters",
			companyID: "../..",
			wantErr:   ErrInvalidCompanyID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GenerateObjectKey(tt.companyID, at)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("GenerateObjectKey() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateObjectKey() error = %v", err)
			}
			if !strings.HasPrefix(key, tt.wantPrefix) {
				t.Errorf("key = %q, want prefix %q", key, tt.wantPrefix)
			}
			if !strings.HasSuffix(key, ".json") {
				t.Errorf("key = %q, want .json suffix", key)
			}
		})
	}
}

func TestGenerateObjectKey_Unique(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	a, err := GenerateObjectKey("com_acme", at)
	if err != nil {
		t.Fatalf("GenerateObjectKey() error = %v", err)
	}
	b, err := GenerateObjectKey("com_acme", at)
	if err != nil {
		t.Fatalf("GenerateObjectKey() error = %v", err)
	}
	if a == b {
		t.Errorf("keys for identical inputs collide: %q", a)
	}
}

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "clean", input: "com_acme-2", want: "com_acme-2"},
		{name: "slashes removed", input: "a/b/c", want: "abc"},
		{name: "dots removed", input: "..", want: ""},
		{name: "spaces removed", input: "a b", want: "ab"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizePathComponent(tt.input); got != tt.want {
				t.Errorf("sanitizePathComponent(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewService(t *testing.T) {
	valid := ServiceConfig{
		BucketName:      "coursepulse-exports",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "https://accountid.r2.cloudflarestorage.com",
	}

	tests := []struct {
		name    string
		mutate  func(*ServiceConfig)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *ServiceConfig) {}, wantErr: false},
		{name: "missing bucket", mutate: func(c *ServiceConfig) { c.BucketName = "" }, wantErr: true},
		{name: "missing access key", mutate: func(c *ServiceConfig) { c.AccessKeyID = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *ServiceConfig) { c.SecretAccessKey = "" }, wantErr: true},
		{name: "missing endpoint", mutate: func(c *ServiceConfig) { c.Endpoint = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			svc, err := NewService(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewService() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && svc == nil {
				t.Error("NewService() returned nil service")
			}
		})
	}
}

func TestNewService_DefaultExpiry(t *testing.T) {
	svc, err := NewService(ServiceConfig{
		BucketName:      "coursepulse-exports",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Endpoint:        "https://accountid.r2.cloudflarestorage.com",
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if svc.urlExpiry != 60*time.Minute {
		t.Errorf("urlExpiry = %v, want 60m default", svc.urlExpiry)
	}
}

func TestExport_NilReport(t *testing.T) {
	svc := &Service{
		bucketName: "coursepulse-exports",
		urlExpiry:  time.Hour,
		timeNow:    time.Now,
	}
	if _, err := svc.Export(context.Background(), "com_acme", nil); err != ErrNilReport {
		t.Errorf("Export() error = %v, want %v", err, ErrNilReport)
	}
}
