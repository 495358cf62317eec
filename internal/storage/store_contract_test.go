package storage

import (
	"reflect"
	"testing"
	"time"

	"github.com/sandeepkv93/alarmd/internal/model"
)

func sampleAlarms() []model.Alarm {
	return []model.Alarm{
		{
			ID:                    "wake",
			Time:                  model.TimeOfDay{Hour: 6, Minute: 30},
			Label:                 "Wake up",
			IsActive:              true,
			RepeatDays:            model.NewWeekdays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
			SoundName:             "classic",
			Volume:                80,
			SnoozeEnabled:         true,
			SnoozeDurationMinutes: 9,
			MaxSnoozes:            3,
			MissionEnabled:        true,
			MissionCount:          2,
			SelectedMissions:      []model.MissionKind{model.MissionMath, model.MissionMemory},
		},
		{
			ID:                    "nap",
			Time:                  model.TimeOfDay{Hour: 14, Minute: 0},
			IsActive:              false,
			SoundName:             "chimes",
			Volume:                0,
			SnoozeDurationMinutes: 5,
		},
		{
			ID:                    "weekend",
			Time:                  model.TimeOfDay{Hour: 9, Minute: 15},
			IsActive:              true,
			RepeatDays:            model.NewWeekdays(time.Saturday, time.Sunday),
			SoundName:             "classic",
			Volume:                55,
			SnoozeEnabled:         true,
			SnoozeDurationMinutes: 10,
			MaxSnoozes:            model.UnlimitedSnoozes,
		},
	}
}

// exerciseStore checks the behaviour every AlarmStore backend must share.
func exerciseStore(t *testing.T, store AlarmStore) {
	t.Helper()
	ctx := t.Context()

	empty, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load empty store: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty store, got %d alarms", len(empty))
	}

	want := sampleAlarms()
	if err := store.SaveAll(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch\n got: %#v\nwant: %#v", got, want)
	}

	if err := store.SaveAll(ctx, got); err != nil {
		t.Fatalf("resave: %v", err)
	}
	again, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(again, want) {
		t.Fatalf("save(load()) changed the set: %#v", again)
	}

	shrunk := want[1:2]
	if err := store.SaveAll(ctx, shrunk); err != nil {
		t.Fatalf("save subset: %v", err)
	}
	got, err = store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load subset: %v", err)
	}
	if len(got) != 1 || got[0].ID != "nap" {
		t.Fatalf("expected only nap after shrinking, got %#v", got)
	}
}

func TestTransientSnoozeCountIsNotPersisted(t *testing.T) {
	store, err := NewFileStore(t.TempDir()+"/alarms.json", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	alarms := sampleAlarms()
	alarms[0].CurrentSnoozeCount = 2
	if err := store.SaveAll(t.Context(), alarms); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadAll(t.Context())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got[0].CurrentSnoozeCount != 0 {
		t.Fatalf("snooze count leaked into storage: %d", got[0].CurrentSnoozeCount)
	}
}

func TestPurgeLeavesUsableEmptyStore(t *testing.T) {
	dir := t.TempDir()
	sqlite, err := OpenSQLite(dir+"/alarms.db", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sqlite.Close()
	file, err := NewFileStore(dir+"/alarms.json", nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	badgerStore, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	defer badgerStore.Close()

	stores := map[string]interface {
		AlarmStore
		Purger
	}{"sqlite": sqlite, "json": file, "badger": badgerStore}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			if err := store.SaveAll(ctx, sampleAlarms()); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Purge(ctx); err != nil {
				t.Fatalf("purge: %v", err)
			}
			got, err := store.LoadAll(ctx)
			if err != nil {
				t.Fatalf("load after purge: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty store after purge, got %d alarms", len(got))
			}
			if err := store.Purge(ctx); err != nil {
				t.Fatalf("second purge: %v", err)
			}
			if err := store.SaveAll(ctx, sampleAlarms()[:1]); err != nil {
				t.Fatalf("save after purge: %v", err)
			}
			got, err = store.LoadAll(ctx)
			if err != nil || len(got) != 1 {
				t.Fatalf("reload after purge: %d alarms, %v", len(got), err)
			}
		})
	}
}
