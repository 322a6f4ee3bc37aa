package lms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExchangeTokenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"abc123"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	token, err := c.ExchangeToken(context.Background(), "student1", "pw", "moodle_mobile_app")
	if err != nil {
		t.Fatalf("ExchangeToken: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q", token)
	}
}

func TestExchangeTokenInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Invalid login, please try again","errorcode":"invalidlogin"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.ExchangeToken(context.Background(), "student1", "wrong", "moodle_mobile_app")
	if err == nil {
		t.Fatal("expected error")
	}
	cerr, ok := err.(*CallError)
	if !ok {
		t.Fatalf("expected *CallError, got %T", err)
	}
	if cerr.Kind != Unknown {
		t.Errorf("kind = %q", cerr.Kind)
	}
}

func TestCallClassifiesInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exception":"invalid_parameter_exception","errorcode":"invalidtoken","message":"Invalid token"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, _, err := c.SiteInfo(context.Background(), "bad-token")
	if err == nil {
		t.Fatal("expected error")
	}
	cerr := err.(*CallError)
	if cerr.Kind != AuthInvalid {
		t.Errorf("kind = %q, want auth_invalid", cerr.Kind)
	}
}

func TestCallClassifiesNoPermissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exception":"required_capability_exception","errorcode":"nopermissions","message":"no permission"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.SaveSubmission(context.Background(), "token", "1", "2")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.(*CallError).Kind != Authz {
		t.Errorf("kind = %q, want authz", err.(*CallError).Kind)
	}
}

func TestCallClassifiesPayloadReject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exception":"file_exception","errorcode":"maxbytesexceeded","message":"file too large"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.UploadFile(context.Background(), "token", []byte("bytes"), "answer.pdf")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.(*CallError).Kind != PayloadReject {
		t.Errorf("kind = %q, want payload_reject", err.(*CallError).Kind)
	}
}

func TestSiteInfoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"userid":42,"username":"student1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	userID, username, err := c.SiteInfo(context.Background(), "token")
	if err != nil {
		t.Fatalf("SiteInfo: %v", err)
	}
	if userID != "42" || username != "student1" {
		t.Errorf("got (%q, %q)", userID, username)
	}
}

func Test5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, _, err := c.SiteInfo(context.Background(), "token")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.(*CallError).Kind != Transient {
		t.Errorf("kind = %q, want transient", err.(*CallError).Kind)
	}
}
