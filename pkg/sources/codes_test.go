package sources

import (
	"errors"
	"testing"

	"github.com/forest6511/sourcectl/pkg/vault"
)

func TestScanCodes(t *testing.T) {
	root := vault.NewGroup("Root")

	mail := vault.NewEntry("Mail")
	mail.SetProperty("username", "alice", vault.KindText)
	mail.SetProperty("otp", "otpauth://totp/Mail:alice?secret=JBSWY3DPEHPK3PXP", vault.KindOneTimeCode)
	root.AddEntry(mail)

	bank := vault.NewEntry("Bank")
	bank.SetProperty("password", "hunter2", vault.KindPassword)
	root.AddEntry(bank)

	sub := vault.NewGroup("Work")
	vpn := vault.NewEntry("VPN")
	vpn.SetProperty("otp", "otpauth://totp/VPN:alice?secret=GEZDGNBV", vault.KindOneTimeCode)
	sub.AddEntry(vpn)
	root.AddGroup(sub)

	entries, errs := scanCodes("src-1", root)
	if len(errs) != 0 {
		t.Fatalf("unexpected scan errors: %v", errs)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.SourceID != "src-1" {
			t.Errorf("SourceID = %q, want src-1", e.SourceID)
		}
	}
	if entries[0].EntryTitle != "Mail" || entries[1].EntryTitle != "VPN" {
		t.Errorf("unexpected order: %q, %q", entries[0].EntryTitle, entries[1].EntryTitle)
	}
}

func TestScanCodesMalformed(t *testing.T) {
	root := vault.NewGroup("Root")

	good := vault.NewEntry("Good")
	good.SetProperty("otp", "otpauth://totp/Good:x?secret=GEZDGNBV", vault.KindOneTimeCode)
	root.AddEntry(good)

	bad := vault.NewEntry("Bad")
	bad.SetProperty("otp", "not a uri at all", vault.KindOneTimeCode)
	root.AddEntry(bad)

	entries, errs := scanCodes("src-1", root)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].EntryTitle != "Good" {
		t.Errorf("EntryTitle = %q, want Good", entries[0].EntryTitle)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if !errors.Is(errs[0], ErrMalformedContent) {
		t.Errorf("error %v does not wrap ErrMalformedContent", errs[0])
	}
}

func TestCodeCacheReplaceAndClear(t *testing.T) {
	c := NewCodeCache()

	c.Replace("a", []CodeEntry{{SourceID: "a", EntryTitle: "One"}})
	c.Replace("b", []CodeEntry{})

	if got, ok := c.CodesFor("a"); !ok || len(got) != 1 {
		t.Errorf("CodesFor(a) = %v, %v", got, ok)
	}
	// An empty replacement still claims the slot
	if got, ok := c.CodesFor("b"); !ok || len(got) != 0 {
		t.Errorf("CodesFor(b) = %v, %v", got, ok)
	}
	if _, ok := c.CodesFor("missing"); ok {
		t.Error("unknown source must have no slot")
	}

	// Wholesale replacement, not merge
	c.Replace("a", []CodeEntry{{SourceID: "a", EntryTitle: "Two"}})
	got, _ := c.CodesFor("a")
	if len(got) != 1 || got[0].EntryTitle != "Two" {
		t.Errorf("CodesFor(a) after replace = %v", got)
	}

	c.Clear("a")
	if _, ok := c.CodesFor("a"); ok {
		t.Error("cleared slot must be gone")
	}

	if all := c.All(); len(all) != 1 {
		t.Errorf("All() has %d slots, want 1", len(all))
	}
}

func TestCodeCacheReturnsCopies(t *testing.T) {
	c := NewCodeCache()
	c.Replace("a", []CodeEntry{{SourceID: "a", EntryTitle: "One"}})

	got, _ := c.CodesFor("a")
	got[0].EntryTitle = "mutated"

	again, _ := c.CodesFor("a")
	if again[0].EntryTitle != "One" {
		t.Error("CodesFor must return a copy")
	}
}
