package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/config"
	"github.com/ayusman/mukha/internal/gesture"
	"github.com/ayusman/mukha/internal/landmark"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleResult() calibration.Result {
	return calibration.Result{
		Center:         landmark.Point{X: 322, Y: 240},
		Range:          calibration.Range{MinX: 238, MaxX: 406, MinY: 180, MaxY: 300},
		BlinkThreshold: 0.08,
		MouthThreshold: 0.48,
	}
}

func TestProfiles_SaveAndLatest(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	if _, err := repo.Latest(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest() on empty store error = %v, want ErrNotFound", err)
	}

	old := &Profile{Name: "old", Result: sampleResult(), ScreenW: 1920, ScreenH: 1080, CreatedAt: t0}
	if err := repo.Save(old); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if old.ID == "" {
		t.Error("Save() did not assign an ID")
	}

	newer := &Profile{Name: "new", Result: sampleResult(), CreatedAt: t0.Add(time.Hour)}
	newer.Result.Center.X = 330
	repo.Save(newer)

	got, err := repo.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	want := *newer
	want.Result.CompletedAt = newer.CreatedAt
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("Latest() mismatch (-want +got):\n%s", diff)
	}

	list, _ := repo.List()
	if len(list) != 2 || list[0].Name != "new" || list[1].Name != "old" {
		t.Errorf("List() order wrong: %v", list)
	}
}

func TestProfiles_GetDeletePrune(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	var ids []string
	for i := 0; i < 4; i++ {
		p := &Profile{Result: sampleResult(), CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		repo.Save(p)
		ids = append(ids, p.ID)
	}

	if p, err := repo.Get(ids[1]); err != nil || p.ID != ids[1] {
		t.Errorf("Get() = %v, %v", p, err)
	}
	if err := repo.Delete(ids[0]); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := repo.Delete(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v", err)
	}

	if err := repo.Prune(1); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	list, _ := repo.List()
	if len(list) != 1 || list[0].ID != ids[3] {
		t.Errorf("Prune(1) left %v, want only %s", list, ids[3])
	}
}

func TestBindings_CRUD(t *testing.T) {
	s := newTestStore(t)
	repo := s.Bindings()

	b := &Binding{Event: gesture.LeftWink, Action: action.Spec{Kind: action.LeftClick}, Enabled: true}
	if err := repo.Create(b); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(b.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Event != gesture.LeftWink || got.Action.Kind != action.LeftClick || !got.Enabled {
		t.Errorf("Get() = %+v", got)
	}

	b.Action = action.Spec{Kind: action.Plugin, Plugin: "keyboard", Command: "keystroke"}
	b.Enabled = false
	if err := repo.Update(b); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ = repo.Get(b.ID)
	if diff := cmp.Diff(b.Action, got.Action); diff != "" || got.Enabled {
		t.Errorf("after Update() = %+v (%s)", got, diff)
	}

	if err := repo.Delete(b.ID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := repo.Get(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v", err)
	}
	if err := repo.Update(b); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() of deleted error = %v", err)
	}
}

func TestBindings_Validation(t *testing.T) {
	repo := newTestStore(t).Bindings()

	tests := []struct {
		name string
		b    Binding
	}{
		{"unknown event", Binding{Event: "sneeze", Action: action.Spec{Kind: action.LeftClick}}},
		{"unknown action", Binding{Event: gesture.Dwell, Action: action.Spec{Kind: "launch"}}},
		{"plugin without name", Binding{Event: gesture.Dwell, Action: action.Spec{Kind: action.Plugin}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(&tt.b); !errors.Is(err, action.ErrInvalidBinding) {
				t.Errorf("Create() error = %v, want ErrInvalidBinding", err)
			}
		})
	}

	dup := Binding{Event: gesture.Dwell, Action: action.Spec{Kind: action.LeftClick}, Enabled: true}
	repo.Create(&dup)
	dup.ID = ""
	if err := repo.Create(&dup); err == nil {
		t.Error("duplicate binding accepted")
	}
}

func TestBindings_SeedAndTable(t *testing.T) {
	repo := newTestStore(t).Bindings()

	defaults, err := action.FromConfig(config.Default().Bindings)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	wrote, err := repo.Seed(defaults)
	if err != nil || !wrote {
		t.Fatalf("Seed() = %v, %v", wrote, err)
	}
	if wrote, _ := repo.Seed(defaults); wrote {
		t.Error("Seed() wrote into a non-empty table")
	}

	table, err := repo.Table()
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if diff := cmp.Diff(defaults.ToConfig(), table.ToConfig()); diff != "" {
		t.Errorf("Table() mismatch (-want +got):\n%s", diff)
	}

	// disabled bindings are left out of the dispatch table
	list, _ := repo.List()
	list[0].Enabled = false
	repo.Update(list[0])
	table, _ = repo.Table()
	if n, _ := repo.Count(); len(table.ToConfig()) != n-1 {
		t.Errorf("Table() has %d bindings, want %d", len(table.ToConfig()), n-1)
	}
}

func TestSettings_Config(t *testing.T) {
	repo := newTestStore(t).Settings()

	cfg := config.Default()
	if ok, err := repo.LoadConfig(cfg); ok || err != nil {
		t.Fatalf("LoadConfig() on empty = %v, %v", ok, err)
	}

	saved := config.Default()
	saved.Pointer.DeadzoneRadius = 14
	saved.Gestures.BlinkMinDuration = config.Duration(300 * time.Millisecond)
	if err := repo.SaveConfig(saved); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	ok, err := repo.LoadConfig(cfg)
	if !ok || err != nil {
		t.Fatalf("LoadConfig() = %v, %v", ok, err)
	}
	if diff := cmp.Diff(saved, cfg); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}

	// an invalid overlay leaves cfg untouched
	repo.Set(ConfigKey, `{"pointer":{"deadzone_radius":-3}}`)
	before := cfg.Clone()
	if _, err := repo.LoadConfig(cfg); err == nil {
		t.Error("LoadConfig() accepted an invalid overlay")
	}
	if diff := cmp.Diff(before, cfg); diff != "" {
		t.Errorf("cfg changed on error (-want +got):\n%s", diff)
	}
}

func TestEvents(t *testing.T) {
	repo := newTestStore(t).Events()

	ev := action.Event{
		Spec:    action.Spec{Kind: action.Plugin, Plugin: "keyboard", Command: "keystroke"},
		Trigger: gesture.Event{Name: gesture.MouthOpen, At: t0, Value: 0.5},
		At:      t0,
	}
	first := NewEventRecord("s1", ev)
	if err := repo.Append(&first); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first.ID == 0 {
		t.Error("Append() did not set ID")
	}

	second := EventRecord{SessionID: "s2", Event: gesture.LeftWink, Action: action.LeftClick, At: t0.Add(time.Minute), Error: "no display"}
	repo.Append(&second)

	all, err := repo.List("", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID {
		t.Fatalf("List() = %v, want newest first", all)
	}
	if diff := cmp.Diff(&first, all[1]); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}

	if s1, _ := repo.List("s1", 10); len(s1) != 1 || s1[0].Plugin != "keyboard" {
		t.Errorf("List(s1) = %v", s1)
	}
	if one, _ := repo.List("", 1); len(one) != 1 {
		t.Errorf("List(limit 1) returned %d", len(one))
	}

	n, err := repo.Prune(t0.Add(30 * time.Second))
	if err != nil || n != 1 {
		t.Errorf("Prune() = %d, %v, want 1", n, err)
	}
}
