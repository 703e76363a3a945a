package api

import (
	"testing"
)

func TestInitTLS(t *testing.T) {
	tests := []struct {
		name    string
		cert    string
		key     string
		enabled bool
	}{
		{"none", "", "", false},
		{"only cert", "/path/to/cert.pem", "", false},
		{"only key", "", "/path/to/key.pem", false},
		{"both", "/path/to/cert.pem", "/path/to/key.pem", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MAZEPHASES_TLS_CERT", tt.cert)
			t.Setenv("MAZEPHASES_TLS_KEY", tt.key)
			SetTLSConfigForTest(nil)
			defer SetTLSConfigForTest(nil)

			InitTLS()

			if IsTLSEnabled() != tt.enabled {
				t.Errorf("IsTLSEnabled() = %v, want %v", IsTLSEnabled(), tt.enabled)
			}
			if tt.enabled && (tlsConfig.CertFile != tt.cert || tlsConfig.KeyFile != tt.key) {
				t.Errorf("unexpected config: %+v", tlsConfig)
			}
		})
	}
}

func TestLoadTLSConfigDisabled(t *testing.T) {
	SetTLSConfigForTest(nil)

	cfg, err := LoadTLSConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Error("LoadTLSConfig should return nil when TLS is not enabled")
	}
}

func TestLoadTLSConfigInvalidFiles(t *testing.T) {
	SetTLSConfigForTest(&TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	})
	defer SetTLSConfigForTest(nil)

	cfg, err := LoadTLSConfig()
	if err == nil {
		t.Error("expected an error for missing certificate files")
	}
	if cfg != nil {
		t.Error("no config should be returned on error")
	}
}

func TestListenAndServeFailsOnBadCertificate(t *testing.T) {
	SetTLSConfigForTest(&TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	})
	defer SetTLSConfigForTest(nil)

	s := newTestServer(t, &fakeLoader{})
	if err := s.ListenAndServe(0); err == nil {
		t.Error("expected ListenAndServe to refuse a broken TLS setup")
	}
}
