package config

import (
	"testing"

	"go.uber.org/zap"
)

func setStorageEnv(t *testing.T, bucket, keyID, secret string) {
	t.Helper()
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_S3_BUCKET_NAME", bucket)
	t.Setenv("AWS_ACCESS_KEY_ID", keyID)
	t.Setenv("AWS_SECRET_ACCESS_KEY", secret)
}

func TestLoadDefaults(t *testing.T) {
	setStorageEnv(t, "", "", "")
	t.Setenv("PORT", "")
	t.Setenv("IMAGEN_BACKEND", "")
	t.Setenv("BLOB_READ_WRITE_TOKEN", "")

	cfg, err := Load(zap.NewNop())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ImagenBackend != "openai" {
		t.Errorf("ImagenBackend = %q, want openai", cfg.ImagenBackend)
	}
	if cfg.StorageConfigured() {
		t.Error("StorageConfigured() = true with empty credentials")
	}
}

func TestStorageConfigured(t *testing.T) {
	setStorageEnv(t, "totem-results", "AKIA123", "secret")

	cfg, err := Load(zap.NewNop())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.StorageConfigured() {
		t.Error("StorageConfigured() = false with full credentials")
	}
}

func TestLoadRecognizesBlobToken(t *testing.T) {
	setStorageEnv(t, "", "", "")
	t.Setenv("BLOB_READ_WRITE_TOKEN", "vercel_blob_rw_token")

	cfg, err := Load(zap.NewNop())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BlobReadWriteToken != "vercel_blob_rw_token" {
		t.Errorf("BlobReadWriteToken = %q, want vercel_blob_rw_token", cfg.BlobReadWriteToken)
	}
	// The token alone does not enable persistence.
	if cfg.StorageConfigured() {
		t.Error("StorageConfigured() = true from blob token alone")
	}
}
