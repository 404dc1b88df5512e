// Proovd Pulse - Real-Time Social Proof Engagement Tracking
// Copyright 2026 Dheeraj Mandava
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dheerajmandava/proovd-pulse

package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerify(t *testing.T) {
	m := NewManager(testSecret, 5*time.Minute)

	token, err := m.IssueSiteToken("site-42")
	if err != nil {
		t.Fatalf("IssueSiteToken error: %v", err)
	}

	siteID, err := m.VerifySiteToken(token)
	if err != nil {
		t.Fatalf("VerifySiteToken error: %v", err)
	}
	if siteID != "site-42" {
		t.Errorf("siteID = %q, want site-42", siteID)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager(testSecret, 5*time.Minute)

	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }
	token, err := m.IssueSiteToken("site-42")
	if err != nil {
		t.Fatal(err)
	}

	m.now = time.Now
	if _, err := m.VerifySiteToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifySiteToken = %v, want ErrInvalidToken for expired token", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuerMgr := NewManager(testSecret, 5*time.Minute)
	verifier := NewManager("ffffffffffffffffffffffffffffffff", 5*time.Minute)

	token, err := issuerMgr.IssueSiteToken("site-42")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := verifier.VerifySiteToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifySiteToken = %v, want ErrInvalidToken for wrong secret", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager(testSecret, 5*time.Minute)

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := m.VerifySiteToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifySiteToken(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}
