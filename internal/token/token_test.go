package token

import (
	"strings"
	"testing"
	"time"
)

func TestMintVerify_RoundTrip(t *testing.T) {
	m := NewMinter("secret", time.Hour)
	raw, err := m.Mint("uuid-1", ActionCancel, 3)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := m.Verify(raw, ActionCancel)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.BookingUUID != "uuid-1" || claims.Version != 3 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerify_WrongAction(t *testing.T) {
	m := NewMinter("secret", time.Hour)
	raw, err := m.Mint("uuid-1", ActionCancel, 1)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Verify(raw, ActionReschedule); err == nil {
		t.Fatal("a cancel token must not authorize a reschedule")
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	m := NewMinter("secret", time.Hour)
	raw, err := m.Mint("uuid-1", ActionCancel, 1)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	parts := strings.Split(raw, ".")
	forged := parts[0] + "." + parts[1][:len(parts[1])-2] + "xx" + "." + parts[2]
	if _, err := m.Verify(forged, ActionCancel); err == nil {
		t.Fatal("tampered payload must not verify")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	raw, err := NewMinter("secret-a", time.Hour).Mint("uuid-1", ActionCancel, 1)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := NewMinter("secret-b", time.Hour).Verify(raw, ActionCancel); err == nil {
		t.Fatal("token signed with a different secret must not verify")
	}
}

func TestVerify_Expired(t *testing.T) {
	m := NewMinter("secret", time.Minute)
	base := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	raw, err := m.Mint("uuid-1", ActionCancel, 1)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := m.Verify(raw, ActionCancel); err == nil {
		t.Fatal("expired token must not verify")
	}
}

func TestVerify_Garbage(t *testing.T) {
	m := NewMinter("secret", time.Hour)
	for _, raw := range []string{"", "a.b", "not-a-token", "a.b.c.d"} {
		if _, err := m.Verify(raw, ActionCancel); err == nil {
			t.Fatalf("garbage %q must not verify", raw)
		}
	}
}
