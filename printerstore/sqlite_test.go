package printerstore

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleNetworkPrinter(name string, role Role, isDefault bool) NewPrinterConfig {
	return NewPrinterConfig{
		Name: name,
		Type: TypeNetwork,
		ConnectionDetails: ConnectionDetails{
			Tag: TypeNetwork,
			IP:  "192.168.1.50",
			Port: 9100,
		},
		PaperSize:    Paper80mm,
		CharacterSet: "CP437",
		Role:         role,
		IsDefault:    isDefault,
		Enabled:      true,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(sampleNetworkPrinter("Front Counter", RoleReceipt, true))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected a generated id")
	}

	got, err := s.Get(saved.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Front Counter" || got.ConnectionDetails.IP != "192.168.1.50" || got.ConnectionDetails.Port != 9100 {
		t.Errorf("round-tripped config mismatch: %+v", got)
	}
	if !got.IsDefault {
		t.Error("expected IsDefault to round-trip true")
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save(sampleNetworkPrinter("Kitchen 1", RoleKitchen, false)); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if _, err := s.Save(sampleNetworkPrinter("Kitchen 1", RoleKitchen, false)); err != ErrDuplicateName {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

// At most one printer is marked default for a given role at any time.
func TestSingleDefaultPerRole(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Save(sampleNetworkPrinter("Kitchen A", RoleKitchen, true))
	if err != nil {
		t.Fatalf("Save first: %v", err)
	}
	second, err := s.Save(sampleNetworkPrinter("Kitchen B", RoleKitchen, true))
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}

	all, err := s.GetByRole(RoleKitchen)
	if err != nil {
		t.Fatalf("GetByRole: %v", err)
	}
	defaults := 0
	for _, c := range all {
		if c.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly 1 default for role kitchen, got %d", defaults)
	}

	refreshedFirst, _ := s.Get(first.ID)
	refreshedSecond, _ := s.Get(second.ID)
	if refreshedFirst.IsDefault {
		t.Error("expected first printer to lose default status when second was saved as default")
	}
	if !refreshedSecond.IsDefault {
		t.Error("expected second printer to hold default status")
	}

	got, err := s.GetDefaultForRole(RoleKitchen)
	if err != nil {
		t.Fatalf("GetDefaultForRole: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("expected default to be %s, got %s", second.ID, got.ID)
	}
}

func TestUpdateReassignsDefault(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Save(sampleNetworkPrinter("Bar A", RoleBar, true))
	b, _ := s.Save(sampleNetworkPrinter("Bar B", RoleBar, false))

	trueVal := true
	if _, err := s.Update(b.ID, Update{IsDefault: &trueVal}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	refreshedA, _ := s.Get(a.ID)
	refreshedB, _ := s.Get(b.ID)
	if refreshedA.IsDefault {
		t.Error("expected a to lose default status")
	}
	if !refreshedB.IsDefault {
		t.Error("expected b to gain default status")
	}
}

func TestDeleteNullsFallbackReferences(t *testing.T) {
	s := newTestStore(t)

	primary, _ := s.Save(sampleNetworkPrinter("Primary", RoleReceipt, true))
	fallbackCfg := sampleNetworkPrinter("Secondary", RoleReceipt, false)
	fallbackCfg.FallbackPrinterID = &primary.ID
	secondary, err := s.Save(fallbackCfg)
	if err != nil {
		t.Fatalf("Save secondary: %v", err)
	}

	if err := s.Delete(primary.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	refreshed, err := s.Get(secondary.ID)
	if err != nil {
		t.Fatalf("Get secondary: %v", err)
	}
	if refreshed.FallbackPrinterID != nil {
		t.Errorf("expected fallback reference to be nulled, got %v", *refreshed.FallbackPrinterID)
	}
}

func TestDeleteUnknownReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("does-not-exist"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConnectionDetailsValidation(t *testing.T) {
	s := newTestStore(t)

	bad := sampleNetworkPrinter("Bad Config", RoleReceipt, false)
	bad.ConnectionDetails.Port = 0
	if _, err := s.Save(bad); err == nil {
		t.Fatal("expected validation error for missing port")
	}
}

func TestReopenAfterMigrationIsStable(t *testing.T) {
	path := t.TempDir() + "/printers.db"

	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	saved, err := s1.Save(sampleNetworkPrinter("Survivor", RoleReceipt, false))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	s1.Close()

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("second open (migration should be a no-op): %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(saved.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Name != "Survivor" {
		t.Errorf("expected config to survive reopen, got %+v", got)
	}
}

func TestNameExists(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(sampleNetworkPrinter("Front Counter", RoleReceipt, false))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if ok, err := s.NameExists("Front Counter", ""); err != nil || !ok {
		t.Fatalf("expected name to exist, got ok=%v err=%v", ok, err)
	}
	if ok, err := s.NameExists("Front Counter", saved.ID); err != nil || ok {
		t.Fatalf("expected name not to count against its own id, got ok=%v err=%v", ok, err)
	}
	if ok, err := s.NameExists("Someone Else", ""); err != nil || ok {
		t.Fatalf("expected unknown name to be free, got ok=%v err=%v", ok, err)
	}
}

func TestUpdateRejectsSelfFallback(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(sampleNetworkPrinter("Loner", RoleReceipt, false))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	self := &saved.ID
	if _, err := s.Update(saved.ID, Update{FallbackPrinterID: &self}); err == nil {
		t.Fatal("expected an error when a printer is set as its own fallback")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Save(sampleNetworkPrinter("Export Me", RoleReceipt, true)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	exported, err := s.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("expected 1 exported config, got %d", len(exported))
	}

	s2 := newTestStore(t)
	n, err := s2.ImportAll(exported, true)
	if err != nil {
		t.Fatalf("ImportAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 config imported, got %d", n)
	}

	got, err := s2.GetByName("Export Me")
	if err != nil {
		t.Fatalf("GetByName after import: %v", err)
	}
	if got.ID != exported[0].ID {
		t.Errorf("expected id to be preserved across import, got %s want %s", got.ID, exported[0].ID)
	}
}
