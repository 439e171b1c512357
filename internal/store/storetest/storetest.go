// Package storetest provides a shared conformance suite for store.Store
// implementations. Each backend wires this suite to verify it satisfies
// the full Store contract.
package storetest

import (
	"context"
	"errors"
	"testing"

	"livewatch/internal/source"
	"livewatch/internal/store"
)

// TestStore runs the full conformance suite. newStore must return a fresh,
// empty store for each sub-test.
func TestStore(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("EmptyDefaults", func(t *testing.T) {
		s := newStore(t)
		list, err := s.ListSources(ctx, false)
		if err != nil {
			t.Fatalf("ListSources: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("expected no sources, got %d", len(list))
		}
		settings, err := s.Settings(ctx)
		if err != nil {
			t.Fatalf("Settings: %v", err)
		}
		if settings != source.DefaultSettings() {
			t.Errorf("expected default settings, got %+v", settings)
		}
	})

	t.Run("AddGetSource", func(t *testing.T) {
		s := newStore(t)
		added, err := s.AddSource(ctx, source.Source{
			Name:    "Chan",
			Address: "https://www.youtube.com/watch?v=ABC&list=XYZ&index=2",
			Enabled: true,
		})
		if err != nil {
			t.Fatalf("AddSource: %v", err)
		}
		if added.ID == "" {
			t.Fatal("expected an id to be assigned")
		}
		if added.Address != "https://www.youtube.com/watch?v=ABC" {
			t.Errorf("Address not normalized: %q", added.Address)
		}
		if added.Format != source.DefaultFormat {
			t.Errorf("Format = %q, want default", added.Format)
		}

		got, err := s.GetSource(ctx, added.ID)
		if err != nil {
			t.Fatalf("GetSource: %v", err)
		}
		if got != added {
			t.Errorf("GetSource = %+v, want %+v", got, added)
		}
	})

	t.Run("AddInvalidSource", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.AddSource(ctx, source.Source{Name: " ", Address: "https://a"}); !errors.Is(err, source.ErrInvalidSource) {
			t.Errorf("expected ErrInvalidSource for empty name, got %v", err)
		}
		if _, err := s.AddSource(ctx, source.Source{Name: "A"}); !errors.Is(err, source.ErrInvalidSource) {
			t.Errorf("expected ErrInvalidSource for empty url, got %v", err)
		}
	})

	t.Run("DuplicateAddressRejected", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.AddSource(ctx, source.Source{Name: "A", Address: "https://www.youtube.com/watch?v=ABC"}); err != nil {
			t.Fatalf("AddSource: %v", err)
		}

		_, err := s.AddSource(ctx, source.Source{Name: "B", Address: "https://www.youtube.com/watch?v=ABC&list=PL1"})
		if !errors.Is(err, store.ErrDuplicateSource) {
			t.Fatalf("expected ErrDuplicateSource, got %v", err)
		}

		list, err := s.ListSources(ctx, false)
		if err != nil {
			t.Fatalf("ListSources: %v", err)
		}
		if len(list) != 1 || list[0].Name != "A" {
			t.Errorf("store changed after rejected add: %+v", list)
		}
	})

	t.Run("ListOrderAndFilter", func(t *testing.T) {
		s := newStore(t)
		names := []string{"first", "second", "third"}
		for i, n := range names {
			if _, err := s.AddSource(ctx, source.Source{Name: n, Address: "https://x/" + n, Enabled: i != 1}); err != nil {
				t.Fatalf("AddSource(%s): %v", n, err)
			}
		}

		all, err := s.ListSources(ctx, false)
		if err != nil {
			t.Fatalf("ListSources: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 sources, got %d", len(all))
		}
		for i, n := range names {
			if all[i].Name != n {
				t.Errorf("all[%d] = %q, want %q", i, all[i].Name, n)
			}
		}

		enabled, err := s.ListSources(ctx, true)
		if err != nil {
			t.Fatalf("ListSources(enabled): %v", err)
		}
		if len(enabled) != 2 || enabled[0].Name != "first" || enabled[1].Name != "third" {
			t.Errorf("enabled = %+v", enabled)
		}
	})

	t.Run("UpdateSource", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.AddSource(ctx, source.Source{Name: "A", Address: "https://a", Enabled: true})

		disabled := false
		name := "Renamed"
		got, err := s.UpdateSource(ctx, a.ID, source.Patch{Name: &name, Enabled: &disabled})
		if err != nil {
			t.Fatalf("UpdateSource: %v", err)
		}
		if got.Name != "Renamed" || got.Enabled {
			t.Errorf("UpdateSource = %+v", got)
		}
		if got.Address != a.Address || got.ID != a.ID {
			t.Errorf("untouched fields changed: %+v", got)
		}

		reread, err := s.GetSource(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetSource: %v", err)
		}
		if reread != got {
			t.Errorf("GetSource = %+v, want %+v", reread, got)
		}
	})

	t.Run("UpdateSourceDuplicateAddress", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.AddSource(ctx, source.Source{Name: "A", Address: "https://a"})
		b, _ := s.AddSource(ctx, source.Source{Name: "B", Address: "https://b"})

		addr := "https://a"
		if _, err := s.UpdateSource(ctx, b.ID, source.Patch{Address: &addr}); !errors.Is(err, store.ErrDuplicateSource) {
			t.Fatalf("expected ErrDuplicateSource, got %v", err)
		}

		same := "https://a"
		if _, err := s.UpdateSource(ctx, a.ID, source.Patch{Address: &same}); err != nil {
			t.Errorf("updating a source to its own address: %v", err)
		}

		got, _ := s.GetSource(ctx, b.ID)
		if got.Address != "https://b" {
			t.Errorf("rejected update changed the store: %+v", got)
		}
	})

	t.Run("UpdateSourceInvalid", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.AddSource(ctx, source.Source{Name: "A", Address: "https://a"})
		empty := ""
		if _, err := s.UpdateSource(ctx, a.ID, source.Patch{Name: &empty}); !errors.Is(err, source.ErrInvalidSource) {
			t.Errorf("expected ErrInvalidSource, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetSource(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetSource: expected ErrNotFound, got %v", err)
		}
		if _, err := s.UpdateSource(ctx, "missing", source.Patch{}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("UpdateSource: expected ErrNotFound, got %v", err)
		}
		if err := s.RemoveSource(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("RemoveSource: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RemoveSource", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.AddSource(ctx, source.Source{Name: "A", Address: "https://a"})
		b, _ := s.AddSource(ctx, source.Source{Name: "B", Address: "https://b"})

		if err := s.RemoveSource(ctx, a.ID); err != nil {
			t.Fatalf("RemoveSource: %v", err)
		}
		list, _ := s.ListSources(ctx, false)
		if len(list) != 1 || list[0].ID != b.ID {
			t.Errorf("after remove: %+v", list)
		}

		// The address is free again.
		if _, err := s.AddSource(ctx, source.Source{Name: "A2", Address: "https://a"}); err != nil {
			t.Errorf("re-adding removed address: %v", err)
		}
	})

	t.Run("UpdateSettings", func(t *testing.T) {
		s := newStore(t)
		interval := 15
		policy := source.SplitSize
		got, err := s.UpdateSettings(ctx, source.SettingsPatch{PollIntervalSeconds: &interval, SplitPolicy: &policy})
		if err != nil {
			t.Fatalf("UpdateSettings: %v", err)
		}
		if got.PollIntervalSeconds != 15 || got.SplitPolicy != source.SplitSize {
			t.Errorf("UpdateSettings = %+v", got)
		}
		if got.SplitSizeMB != 500 {
			t.Errorf("untouched field changed: %+v", got)
		}

		reread, err := s.Settings(ctx)
		if err != nil {
			t.Fatalf("Settings: %v", err)
		}
		if reread != got {
			t.Errorf("Settings = %+v, want %+v", reread, got)
		}
	})

	t.Run("UpdateSettingsInvalid", func(t *testing.T) {
		s := newStore(t)
		zero := 0
		if _, err := s.UpdateSettings(ctx, source.SettingsPatch{PollIntervalSeconds: &zero}); !errors.Is(err, source.ErrInvalidSettings) {
			t.Fatalf("expected ErrInvalidSettings, got %v", err)
		}
		got, _ := s.Settings(ctx)
		if got != source.DefaultSettings() {
			t.Errorf("rejected update changed settings: %+v", got)
		}
	})
}
