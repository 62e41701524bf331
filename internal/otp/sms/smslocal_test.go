package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "")
	if client.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient timeout not defaulted")
	}
	custom := NewSMSLocalClient("api-key", "https://custom.sms.local/api", "BIZBNK")
	if custom.BaseURL != "https://custom.sms.local/api" {
		t.Errorf("BaseURL = %q, want custom", custom.BaseURL)
	}
	if custom.SenderID != "BIZBNK" {
		t.Errorf("SenderID = %q, want %q", custom.SenderID, "BIZBNK")
	}
}

func TestSendCode_Success(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want %q", r.Method, http.MethodPost)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q, want test-api-key", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "BIZBNK")
	if err := client.SendCode(context.Background(), "+44 7700 900123", "123456"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
	if got.Route != "otp" {
		t.Errorf("route = %q, want otp", got.Route)
	}
	if got.Numbers != "447700900123" {
		t.Errorf("numbers = %q, want 447700900123", got.Numbers)
	}
	if got.Variables != "123456" {
		t.Errorf("variables = %q, want 123456", got.Variables)
	}
	if got.SenderID != "BIZBNK" {
		t.Errorf("sender_id = %q, want BIZBNK", got.SenderID)
	}
}

func TestSendCode_MissingAPIKey(t *testing.T) {
	err := NewSMSLocalClient("", "", "").SendCode(context.Background(), "1234567890", "123456")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSendCode_NoDigits(t *testing.T) {
	err := NewSMSLocalClient("k", "", "").SendCode(context.Background(), "call me", "123456")
	if err == nil {
		t.Fatal("expected error for phone without digits")
	}
}

func TestSendCode_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer server.Close()

	err := NewSMSLocalClient("api-key", server.URL, "").SendCode(context.Background(), "1234567890", "123456")
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
	if !strings.Contains(err.Error(), "status=400") || !strings.Contains(err.Error(), "invalid request") {
		t.Errorf("error message = %q, want status and body", err.Error())
	}
	if strings.Contains(err.Error(), "123456") {
		t.Error("error message must not contain the code")
	}
}

func TestSendCode_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := NewSMSLocalClient("api-key", server.URL, "").SendCode(ctx, "1234567890", "123456"); err == nil {
		t.Fatal("expected error when context is cancelled")
	}
}
