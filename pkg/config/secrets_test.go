package config

import (
	"strings"
	"testing"
)

func TestLoadWithSecrets_DiscoversSiblingFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	file := writeFile(t, dir, "config.yaml", "auth:\n  jwt_enabled: true\n  issuer: registry\n")
	writeFile(t, dir, "secrets.yaml", "auth:\n  jwt_secret: s3cr3t\n")

	cfg, secrets, err := NewViperLoader(file, "ARSECRETS").LoadWithSecrets()
	if err != nil {
		t.Fatalf("LoadWithSecrets() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cr3t" || !cfg.Auth.JWTEnabled {
		t.Fatalf("expected merged auth config, got %+v", cfg.Auth)
	}
	if secrets == nil || secrets.Auth.JWTSecret != "s3cr3t" {
		t.Fatalf("expected secrets to hold the secret, got %+v", secrets)
	}
}

func TestLoadWithSecrets_ExplicitEnvMustExist(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARSECRETS_SECRETS_FILE", "/missing/secrets.yaml")

	if _, _, err := NewViperLoader("", "ARSECRETS").LoadWithSecrets(); err == nil {
		t.Fatal("expected error for missing explicit secrets file")
	}
}

func TestYAML_MasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AWS.SecretAccessKey = "aws-secret"
	cfg.Auth.JWTSecret = "jwt-secret"
	cfg.Auth.Issuer = "registry"
	cfg.S3.Bucket = "adapters"

	secrets := &Config{}
	secrets.Auth.Issuer = "registry"

	out, err := cfg.YAML(secrets)
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	text := string(out)
	for _, leaked := range []string{"aws-secret", "jwt-secret", "issuer: registry"} {
		if strings.Contains(text, leaked) {
			t.Errorf("expected %q to be masked:\n%s", leaked, text)
		}
	}
	if !strings.Contains(text, "bucket: adapters") {
		t.Errorf("expected bucket in output:\n%s", text)
	}
	if !strings.Contains(text, "read_timeout: 30s") {
		t.Errorf("expected durations rendered as strings:\n%s", text)
	}
	if cfg.Auth.JWTSecret != "jwt-secret" {
		t.Error("Redacted must not modify the receiver")
	}
}

func TestLoadWithSecrets_ExplicitEnvRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ARSECRETS_SECRETS_FILE", dir)

	_, _, err := NewViperLoader("", "ARSECRETS").LoadWithSecrets()
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("expected a directory error, got %v", err)
	}
}

func TestLoadWithSecrets_WorkingDirectoryFallback(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "secrets.yml", "aws:\n  access_key_id: AKIDEXAMPLE\n  secret_access_key: from-wd\n")

	cfg, secrets, err := NewViperLoader("", "ARSECRETS").LoadWithSecrets()
	if err != nil {
		t.Fatalf("LoadWithSecrets() error = %v", err)
	}
	if cfg.AWS.SecretAccessKey != "from-wd" || secrets.AWS.SecretAccessKey != "from-wd" {
		t.Fatalf("expected the working directory secrets file to be merged, got %+v", cfg.AWS)
	}
}

func TestLoadWithSecrets_EnvOverridesSecretsFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "secrets.yaml", "auth:\n  jwt_secret: from-file\n")
	t.Setenv("ARSECRETS_AUTH_JWT_SECRET", "from-env")

	cfg, _, err := NewViperLoader("", "ARSECRETS").LoadWithSecrets()
	if err != nil {
		t.Fatalf("LoadWithSecrets() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected the environment to win, got %q", cfg.Auth.JWTSecret)
	}
}
