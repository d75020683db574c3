// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestOllamaClient points an OllamaClient at the given test server.
func newTestOllamaClient(t *testing.T, serverURL string) *OllamaClient {
	t.Helper()
	t.Setenv("OLLAMA_BASE_URL", serverURL)
	t.Setenv("OLLAMA_MODEL", "test-model")
	client, err := NewOllamaClient()
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	return client
}

func TestNewClient_UnknownBackend(t *testing.T) {
	_, err := NewClient("mainframe")
	if err == nil {
		t.Fatal("NewClient(mainframe) expected error, got nil")
	}
	if !strings.Contains(err.Error(), "mainframe") {
		t.Errorf("error should name the backend, got %v", err)
	}
}

func TestNewClient_OllamaBackend(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")
	t.Setenv("OLLAMA_MODEL", "test-model")
	client, err := NewClient("ollama")
	if err != nil {
		t.Fatalf("NewClient(ollama) error = %v", err)
	}
	if _, ok := client.(*OllamaClient); !ok {
		t.Errorf("NewClient(ollama) = %T, want *OllamaClient", client)
	}
}

func TestNewOllamaClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	if _, err := NewOllamaClient(); err == nil {
		t.Fatal("expected error when OLLAMA_BASE_URL is unset")
	}
}

func TestNewOllamaClient_DefaultModel(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434/")
	t.Setenv("OLLAMA_MODEL", "")
	client, err := NewOllamaClient()
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	if client.model != "gpt-oss" {
		t.Errorf("model = %q, want gpt-oss", client.model)
	}
	if strings.HasSuffix(client.baseURL, "/") {
		t.Errorf("baseURL should have trailing slash trimmed, got %q", client.baseURL)
	}
}

func TestOllamaGenerate(t *testing.T) {
	var captured ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    "test-model",
			Response: "a generated reply",
			Done:     true,
		})
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	got, err := client.Generate(context.Background(), "describe the measure", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "a generated reply" {
		t.Errorf("Generate() = %q, want %q", got, "a generated reply")
	}
	if captured.Model != "test-model" {
		t.Errorf("request model = %q, want test-model", captured.Model)
	}
	if captured.Prompt != "describe the measure" {
		t.Errorf("request prompt = %q", captured.Prompt)
	}
	if captured.Stream {
		t.Error("request should be non-streaming")
	}
	if captured.Format != "" {
		t.Errorf("format = %q, want empty without JSONOnly", captured.Format)
	}
}

func TestOllamaGenerate_JSONOnly(t *testing.T) {
	var captured ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: `{"ok":true}`, Done: true})
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	temp := float32(0.5)
	maxTokens := 256
	_, err := client.Generate(context.Background(), "p", GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		JSONOnly:    true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if captured.Format != "json" {
		t.Errorf("format = %q, want json", captured.Format)
	}
	if got := captured.Options["temperature"]; got != float64(temp) {
		t.Errorf("temperature option = %v, want %v", got, temp)
	}
	if got := captured.Options["num_predict"]; got != float64(maxTokens) {
		t.Errorf("num_predict option = %v, want %v", got, maxTokens)
	}
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'test-model' not found"}`))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	_, err := client.Generate(context.Background(), "p", GenerationParams{})
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if !strings.Contains(err.Error(), "ollama pull") {
		t.Errorf("error should suggest pulling the model, got %v", err)
	}
}

func TestOllamaGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("backend exploded"))
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	_, err := client.Generate(context.Background(), "p", GenerationParams{})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error should carry the status code, got %v", err)
	}
}

func TestOllamaGenerate_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "late", Done: true})
	}))
	defer server.Close()

	client := newTestOllamaClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Generate(ctx, "p", GenerationParams{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
